package glm

import (
	"fmt"
	"math"

	"github.com/arloliu/ratetab/design"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
	"github.com/arloliu/ratetab/internal/options"
)

// Fitter holds the path and convergence configuration of a fit.
type Fitter struct {
	alpha          float64
	pathLength     int
	lambdaMinRatio float64
	maxOuter       int
	maxInner       int
	tol            float64
}

// FitOption configures a fit.
type FitOption = options.Option[*Fitter]

// WithAlpha sets the elastic-net mixing weight in (0, 1]: 1 is the lasso,
// values below 1 blend in a ridge penalty. The default is 1.
func WithAlpha(alpha float64) FitOption {
	return options.New(func(f *Fitter) error {
		if alpha <= 0 || alpha > 1 {
			return fmt.Errorf("alpha must be in (0, 1], got %g", alpha)
		}
		f.alpha = alpha

		return nil
	})
}

// WithPathLength sets the number of lambda values on the path.
// The default is 100.
func WithPathLength(n int) FitOption {
	return options.New(func(f *Fitter) error {
		if n < 2 {
			return fmt.Errorf("path length must be at least 2, got %d", n)
		}
		f.pathLength = n

		return nil
	})
}

// WithLambdaMinRatio sets the ratio of the smallest to the largest lambda
// on the path. The default is 1e-4.
func WithLambdaMinRatio(ratio float64) FitOption {
	return options.New(func(f *Fitter) error {
		if ratio <= 0 || ratio >= 1 {
			return fmt.Errorf("lambda min ratio must be in (0, 1), got %g", ratio)
		}
		f.lambdaMinRatio = ratio

		return nil
	})
}

func defaultFitter() *Fitter {
	return &Fitter{
		alpha:          1.0,
		pathLength:     100,
		lambdaMinRatio: 1e-4,
		maxOuter:       25,
		maxInner:       200,
		tol:            1e-8,
	}
}

// PathPoint is one fitted point of the regularization path.
type PathPoint struct {
	// Lambda is the regularization strength.
	Lambda float64
	// Intercept is the fitted unpenalized intercept.
	Intercept float64
	// Coefficients holds one value per design-matrix column.
	Coefficients []float64
	// DevianceRatio is the fraction of null deviance explained.
	DevianceRatio float64
	// LogLik is the Poisson log-likelihood.
	LogLik float64
	// NonZero counts the non-zero coefficients, excluding the intercept.
	NonZero int
}

// Result is the outcome of a penalized Poisson fit: the whole path plus
// the point chosen by the selection strategy.
type Result struct {
	// Path holds every fitted point, ordered by decreasing lambda.
	Path []PathPoint
	// Selected is the index of the chosen path point.
	Selected int
	// Strategy is the selection strategy that chose it.
	Strategy format.Strategy
	// Lambda is the chosen regularization strength.
	Lambda float64
	// Intercept is the chosen intercept.
	Intercept float64
	// Coefficients maps column names to non-zero estimates. Columns
	// regularized to exactly zero are absent.
	Coefficients map[string]float64
	// NullDeviance is the deviance of the intercept-plus-offset model.
	NullDeviance float64
	// Deviance is the chosen model's deviance.
	Deviance float64
}

// etaBound keeps the linear predictor inside a range where exp() is safe.
const etaBound = 30.0

// Fit fits the penalized Poisson path and selects one point.
//
// Parameters:
//   - x: Design matrix (no intercept column)
//   - y: Non-negative response counts, one per row
//   - logOffset: log(exposure) per row; must be finite
//   - strategy: Path selection strategy (1se, AIC or BIC)
//   - opts: Optional path configuration
//
// Returns:
//   - *Result: The fitted path and selected coefficients
//   - error: errs.ErrUnknownStrategy, or an input validation error
func Fit(x *design.Matrix, y []float64, logOffset []float64, strategy format.Strategy, opts ...FitOption) (*Result, error) {
	switch strategy {
	case format.Strategy1SE, format.StrategyAIC, format.StrategyBIC:
	default:
		return nil, fmt.Errorf("%w: 0x%x", errs.ErrUnknownStrategy, uint8(strategy))
	}

	n := x.Rows
	if n == 0 {
		return nil, errs.ErrEmptyDataset
	}
	if len(y) != n || len(logOffset) != n {
		return nil, fmt.Errorf("dimension mismatch: %d rows, %d responses, %d offsets", n, len(y), len(logOffset))
	}
	for i, v := range y {
		if v < 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("response at row %d is %g, must be a non-negative count", i, v)
		}
	}
	for i, v := range logOffset {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: log-offset at row %d is %g", errs.ErrNonPositiveExposure, i, v)
		}
	}

	fitter := defaultFitter()
	if err := options.Apply(fitter, opts...); err != nil {
		return nil, err
	}

	return fitter.fit(x, y, logOffset, strategy)
}

// fit runs the path. Predictors are standardized internally; reported
// coefficients are on the original scale.
func (f *Fitter) fit(x *design.Matrix, y []float64, logOffset []float64, strategy format.Strategy) (*Result, error) {
	n := x.Rows
	p := len(x.Cols)

	// Standardize columns to mean 0, sd 1. Constant columns are dropped
	// from the active set and keep a zero coefficient.
	mean := make([]float64, p)
	sd := make([]float64, p)
	xs := make([][]float64, p)
	active := make([]bool, p)
	for j, col := range x.Cols {
		var sum float64
		for _, v := range col {
			sum += v
		}
		mean[j] = sum / float64(n)
		var ss float64
		for _, v := range col {
			d := v - mean[j]
			ss += d * d
		}
		sd[j] = math.Sqrt(ss / float64(n))
		if sd[j] == 0 {
			continue
		}
		active[j] = true
		std := make([]float64, n)
		for i, v := range col {
			std[i] = (v - mean[j]) / sd[j]
		}
		xs[j] = std
	}

	// Null model: intercept plus offset only.
	var sumY, sumExpOff float64
	for i := range n {
		sumY += y[i]
		sumExpOff += math.Exp(logOffset[i])
	}
	if sumY == 0 {
		return nil, fmt.Errorf("all responses are zero, nothing to fit")
	}
	b0Null := math.Log(sumY / sumExpOff)

	mu := make([]float64, n)
	eta := make([]float64, n)
	for i := range n {
		eta[i] = b0Null + logOffset[i]
		mu[i] = math.Exp(clamp(eta[i], -etaBound, etaBound))
	}
	nullDev := poissonDeviance(y, mu)

	// lambda_max is the smallest lambda with every coefficient zero.
	lambdaMax := 0.0
	for j := range p {
		if !active[j] {
			continue
		}
		var g float64
		for i := range n {
			g += xs[j][i] * (y[i] - mu[i])
		}
		g = math.Abs(g) / (float64(n) * f.alpha)
		if g > lambdaMax {
			lambdaMax = g
		}
	}
	if lambdaMax == 0 {
		// No usable predictor varies; the path collapses to the null model.
		lambdaMax = 1.0
	}

	logStep := math.Log(f.lambdaMinRatio) / float64(f.pathLength-1)
	path := make([]PathPoint, 0, f.pathLength)

	beta := make([]float64, p)
	b0 := b0Null
	for k := range f.pathLength {
		lambda := lambdaMax * math.Exp(logStep*float64(k))
		b0 = f.irls(xs, active, y, logOffset, lambda, beta, b0, eta, mu)

		dev := poissonDeviance(y, mu)
		point := PathPoint{
			Lambda:        lambda,
			Intercept:     b0,
			Coefficients:  make([]float64, p),
			DevianceRatio: 1 - dev/nullDev,
			LogLik:        poissonLogLik(y, eta, mu),
		}
		// Back to the original predictor scale.
		adj := 0.0
		for j := range p {
			if !active[j] || beta[j] == 0 {
				continue
			}
			point.Coefficients[j] = beta[j] / sd[j]
			adj += beta[j] * mean[j] / sd[j]
			point.NonZero++
		}
		point.Intercept = b0 - adj
		path = append(path, point)
	}

	selected, err := selectPoint(path, strategy, sumY)
	if err != nil {
		return nil, err
	}

	chosen := &path[selected]
	coefs := make(map[string]float64, chosen.NonZero)
	for j, v := range chosen.Coefficients {
		if v != 0 {
			coefs[x.Names[j]] = v
		}
	}

	return &Result{
		Path:         path,
		Selected:     selected,
		Strategy:     strategy,
		Lambda:       chosen.Lambda,
		Intercept:    chosen.Intercept,
		Coefficients: coefs,
		NullDeviance: nullDev,
		Deviance:     nullDev * (1 - chosen.DevianceRatio),
	}, nil
}

// irls runs the outer IRLS loop for one lambda, updating beta and b0 in
// place (on the standardized scale) and leaving eta and mu consistent with
// the final coefficients. Returns the updated intercept.
func (f *Fitter) irls(xs [][]float64, active []bool, y, logOffset []float64, lambda float64, beta []float64, b0 float64, eta, mu []float64) float64 {
	n := len(y)
	p := len(beta)

	w := make([]float64, n)
	z := make([]float64, n)
	r := make([]float64, n)

	refresh := func() {
		for i := range n {
			v := b0 + logOffset[i]
			for j := range p {
				if active[j] && beta[j] != 0 {
					v += beta[j] * xs[j][i]
				}
			}
			eta[i] = clamp(v, -etaBound, etaBound)
			mu[i] = math.Exp(eta[i])
		}
	}
	refresh()

	for range f.maxOuter {
		// Working response and weights of the quadratic approximation.
		var sumW float64
		for i := range n {
			w[i] = mu[i]
			z[i] = (eta[i] - logOffset[i]) + (y[i]-mu[i])/mu[i]
			sumW += w[i]
		}

		// Weighted second moments of the standardized columns.
		wx2 := make([]float64, p)
		for j := range p {
			if !active[j] {
				continue
			}
			var s float64
			for i := range n {
				s += w[i] * xs[j][i] * xs[j][i]
			}
			wx2[j] = s / float64(n)
		}

		// Residual of the current linear fit.
		for i := range n {
			v := b0
			for j := range p {
				if active[j] && beta[j] != 0 {
					v += beta[j] * xs[j][i]
				}
			}
			r[i] = z[i] - v
		}

		// Cyclic coordinate descent on the penalized weighted least squares.
		maxDelta := 0.0
		for range f.maxInner {
			maxDelta = 0

			// Unpenalized intercept.
			var num float64
			for i := range n {
				num += w[i] * r[i]
			}
			d0 := num / sumW
			if d0 != 0 {
				b0 += d0
				for i := range n {
					r[i] -= d0
				}
				maxDelta = math.Max(maxDelta, math.Abs(d0))
			}

			for j := range p {
				if !active[j] || wx2[j] == 0 {
					continue
				}
				var g float64
				for i := range n {
					g += w[i] * xs[j][i] * r[i]
				}
				u := g/float64(n) + beta[j]*wx2[j]
				newBeta := softThreshold(u, lambda*f.alpha) / (wx2[j] + lambda*(1-f.alpha))
				delta := newBeta - beta[j]
				if delta != 0 {
					beta[j] = newBeta
					for i := range n {
						r[i] -= delta * xs[j][i]
					}
					maxDelta = math.Max(maxDelta, math.Abs(delta))
				}
			}

			if maxDelta < f.tol {
				break
			}
		}

		refresh()
		if maxDelta < f.tol {
			break
		}
	}

	return b0
}

// softThreshold is the lasso shrinkage operator.
func softThreshold(u, t float64) float64 {
	switch {
	case u > t:
		return u - t
	case u < -t:
		return u + t
	default:
		return 0
	}
}

// poissonDeviance computes 2*sum(y*log(y/mu) - (y - mu)), with the y=0
// limit handled exactly.
func poissonDeviance(y, mu []float64) float64 {
	var dev float64
	for i := range y {
		if y[i] > 0 {
			dev += y[i]*math.Log(y[i]/mu[i]) - (y[i] - mu[i])
		} else {
			dev += mu[i]
		}
	}

	return 2 * dev
}

// poissonLogLik computes sum(y*eta - mu - lgamma(y+1)).
func poissonLogLik(y, eta, mu []float64) float64 {
	var ll float64
	for i := range y {
		lg, _ := math.Lgamma(y[i] + 1)
		ll += y[i]*eta[i] - mu[i] - lg
	}

	return ll
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}
