package design

import "slices"

// naturalSpline evaluates a natural cubic spline basis at x.
//
// The basis follows the usual truncated-power construction: with the full
// knot vector k_1 < ... < k_K (boundary knots plus interior knots), the
// columns are
//
//	N_1(x)   = x
//	N_j+1(x) = d_j(x) - d_K-1(x),  j = 1..K-2
//
// where d_j(x) = ((x-k_j)_+^3 - (x-k_K)_+^3) / (k_K - k_j). The second
// derivative vanishes beyond the boundary knots, so extrapolation is
// linear, matching the behavior of the spline terms this basis replaces.
// The basis has len(interior)+1 columns.
type naturalSpline struct {
	knots []float64 // full sorted knot vector, boundary knots included
}

// newNaturalSpline builds the basis for the given interior and boundary
// knots. Duplicate knots are collapsed.
func newNaturalSpline(interior []float64, lo, hi float64) *naturalSpline {
	knots := make([]float64, 0, len(interior)+2)
	knots = append(knots, lo)
	knots = append(knots, interior...)
	knots = append(knots, hi)
	slices.Sort(knots)
	knots = slices.Compact(knots)

	return &naturalSpline{knots: knots}
}

// dim returns the number of basis columns.
func (s *naturalSpline) dim() int {
	return len(s.knots) - 1
}

// eval writes the basis values at x into out, which must have length dim.
func (s *naturalSpline) eval(x float64, out []float64) {
	k := s.knots
	last := len(k) - 1

	out[0] = x
	dLast := s.d(x, last-1)
	for j := 1; j < s.dim(); j++ {
		out[j] = s.d(x, j-1) - dLast
	}
}

// d computes the j-th truncated-power difference quotient.
func (s *naturalSpline) d(x float64, j int) float64 {
	k := s.knots
	last := len(k) - 1

	return (cubePlus(x-k[j]) - cubePlus(x-k[last])) / (k[last] - k[j])
}

func cubePlus(v float64) float64 {
	if v <= 0 {
		return 0
	}

	return v * v * v
}
