package glm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ratetab/design"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
)

// linearRateData builds a deterministic Poisson-like dataset: one numeric
// predictor with rate exp(b0 + b1*x) and the response rounded to whole
// counts.
func linearRateData(n int, b0, b1 float64) (*design.Matrix, []float64, []float64) {
	x := make([]float64, n)
	y := make([]float64, n)
	logOffset := make([]float64, n)
	exposure := 100.0
	for i := range n {
		x[i] = float64(i)
		rate := math.Exp(b0 + b1*x[i])
		y[i] = math.Round(rate * exposure)
		logOffset[i] = math.Log(exposure)
	}

	m := &design.Matrix{Names: []string{"X"}, Cols: [][]float64{x}, Rows: n}

	return m, y, logOffset
}

func TestFit_InterceptOnly(t *testing.T) {
	// A constant predictor is inactive; the fit collapses to the null
	// model with intercept log(sum y / sum exposure).
	n := 20
	cols := [][]float64{make([]float64, n)}
	y := make([]float64, n)
	logOffset := make([]float64, n)
	for i := range n {
		cols[0][i] = 1
		y[i] = 6
		logOffset[i] = math.Log(100.0)
	}
	m := &design.Matrix{Names: []string{"One"}, Cols: cols, Rows: n}

	res, err := Fit(m, y, logOffset, format.StrategyAIC)
	require.NoError(t, err)
	require.Empty(t, res.Coefficients)
	require.InDelta(t, math.Log(0.06), res.Intercept, 1e-6)
	require.InDelta(t, 0, res.Path[res.Selected].DevianceRatio, 1e-9)
}

func TestFit_RecoversLinearSignal(t *testing.T) {
	m, y, logOffset := linearRateData(41, -2, 0.05)

	res, err := Fit(m, y, logOffset, format.StrategyAIC)
	require.NoError(t, err)

	require.InDelta(t, 0.05, res.Coefficients["X"], 0.01)
	require.InDelta(t, -2.0, res.Intercept, 0.15)
	require.Greater(t, res.Path[res.Selected].DevianceRatio, 0.9)
	require.Less(t, res.Deviance, res.NullDeviance)
}

func TestFit_PathShape(t *testing.T) {
	m, y, logOffset := linearRateData(41, -2, 0.05)

	res, err := Fit(m, y, logOffset, format.StrategyAIC)
	require.NoError(t, err)
	require.Len(t, res.Path, 100)

	// Lambdas decrease strictly; the first point is fully penalized.
	for k := 1; k < len(res.Path); k++ {
		require.Less(t, res.Path[k].Lambda, res.Path[k-1].Lambda)
	}
	require.Equal(t, 0, res.Path[0].NonZero)

	for _, point := range res.Path {
		require.GreaterOrEqual(t, point.DevianceRatio, -1e-9)
		require.LessOrEqual(t, point.DevianceRatio, 1.0)
	}
	first := res.Path[0].DevianceRatio
	last := res.Path[len(res.Path)-1].DevianceRatio
	require.Greater(t, last, first)
}

func TestFit_PathLengthOption(t *testing.T) {
	m, y, logOffset := linearRateData(41, -2, 0.05)

	res, err := Fit(m, y, logOffset, format.StrategyAIC, WithPathLength(25))
	require.NoError(t, err)
	require.Len(t, res.Path, 25)
}

func TestFit_OneSEWithinTopHalf(t *testing.T) {
	m, y, logOffset := linearRateData(41, -2, 0.05)

	res, err := Fit(m, y, logOffset, format.Strategy1SE)
	require.NoError(t, err)

	half := len(res.Path) / 2
	require.GreaterOrEqual(t, res.Selected, half)

	// The chosen point never beats the best deviance ratio, and it is at
	// least as regularized as the point achieving it.
	best := 0
	for k, point := range res.Path {
		if point.DevianceRatio > res.Path[best].DevianceRatio {
			best = k
		}
	}
	require.LessOrEqual(t, res.Path[res.Selected].DevianceRatio, res.Path[best].DevianceRatio)
	require.GreaterOrEqual(t, res.Path[res.Selected].Lambda, res.Path[best].Lambda)
}

func TestFit_UnknownStrategy(t *testing.T) {
	m, y, logOffset := linearRateData(10, -2, 0.05)

	_, err := Fit(m, y, logOffset, format.Strategy(0))
	require.ErrorIs(t, err, errs.ErrUnknownStrategy)
}

func TestFit_InputValidation(t *testing.T) {
	m, y, logOffset := linearRateData(10, -2, 0.05)

	t.Run("NegativeResponse", func(t *testing.T) {
		bad := append([]float64(nil), y...)
		bad[3] = -1
		_, err := Fit(m, bad, logOffset, format.StrategyAIC)
		require.Error(t, err)
	})

	t.Run("NonFiniteOffset", func(t *testing.T) {
		bad := append([]float64(nil), logOffset...)
		bad[0] = math.Inf(-1)
		_, err := Fit(m, y, bad, format.StrategyAIC)
		require.ErrorIs(t, err, errs.ErrNonPositiveExposure)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := Fit(m, y[:5], logOffset, format.StrategyAIC)
		require.Error(t, err)
	})

	t.Run("AllZeroResponses", func(t *testing.T) {
		zero := make([]float64, len(y))
		_, err := Fit(m, zero, logOffset, format.StrategyAIC)
		require.Error(t, err)
	})
}

func TestSelectCriterion_TieBreaksToFirst(t *testing.T) {
	path := []PathPoint{
		{LogLik: -10, NonZero: 1},
		{LogLik: -10, NonZero: 1},
		{LogLik: -11, NonZero: 0},
	}

	require.Equal(t, 0, selectCriterion(path, format.StrategyAIC, 100))
}

func TestSelectCriterion_BICPenalizesHarder(t *testing.T) {
	// With n = 1000, BIC's log(n)*k term outweighs AIC's 2k, so BIC
	// prefers the sparser point when the likelihood gap is small.
	path := []PathPoint{
		{LogLik: -100, NonZero: 0},
		{LogLik: -90, NonZero: 5},
	}

	require.Equal(t, 1, selectCriterion(path, format.StrategyAIC, 1000))
	require.Equal(t, 0, selectCriterion(path, format.StrategyBIC, 1000))
}

func TestSoftThreshold(t *testing.T) {
	tests := []struct {
		name string
		u    float64
		t    float64
		want float64
	}{
		{name: "AboveThreshold", u: 3, t: 1, want: 2},
		{name: "BelowNegThreshold", u: -3, t: 1, want: -2},
		{name: "InsideDeadZone", u: 0.5, t: 1, want: 0},
		{name: "ExactThreshold", u: 1, t: 1, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, softThreshold(tt.u, tt.t))
		})
	}
}

func TestPoissonDeviance(t *testing.T) {
	// A saturated fit has zero deviance; the y=0 limit contributes 2*mu.
	require.InDelta(t, 0, poissonDeviance([]float64{3, 7}, []float64{3, 7}), 1e-12)
	require.InDelta(t, 2*1.5, poissonDeviance([]float64{0}, []float64{1.5}), 1e-12)
}

func TestStddev(t *testing.T) {
	require.InDelta(t, math.Sqrt(5), stddev([]float64{2, 4, 6, 8}), 1e-9)
	require.Equal(t, 0.0, stddev([]float64{5, 5, 5}))
}
