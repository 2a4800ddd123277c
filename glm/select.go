package glm

import (
	"fmt"
	"math"

	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
)

// selectPoint picks one path index according to the strategy. totalCount
// is the total response count, the sample size the information criteria
// are computed against.
func selectPoint(path []PathPoint, strategy format.Strategy, totalCount float64) (int, error) {
	switch strategy {
	case format.Strategy1SE:
		return selectOneSE(path), nil
	case format.StrategyAIC, format.StrategyBIC:
		return selectCriterion(path, strategy, totalCount), nil
	default:
		return 0, fmt.Errorf("%w: 0x%x", errs.ErrUnknownStrategy, uint8(strategy))
	}
}

// selectOneSE implements the one-standard-deviation backoff rule.
//
// Only the upper half of the path (closer to the unpenalized end, where
// deviance ratios are largest) is considered. The spread of that half is
// measured as the standard deviation of the log deviance ratios; the
// target is the best ratio backed off by that spread on the log scale.
// The chosen point is the most regularized one still at or below the
// target: the largest index whose ratio does not exceed it, ties falling
// to the more regularized side. When every considered ratio exceeds the
// target the first point of the half is used.
func selectOneSE(path []PathPoint) int {
	k := len(path)
	start := k / 2

	// log ratios over the considered half; non-positive ratios carry no
	// information about the spread and are skipped.
	var logs []float64
	maxRatio := 0.0
	for i := start; i < k; i++ {
		ratio := path[i].DevianceRatio
		if ratio > maxRatio {
			maxRatio = ratio
		}
		if ratio > 0 {
			logs = append(logs, math.Log(ratio))
		}
	}
	if maxRatio <= 0 || len(logs) == 0 {
		return start
	}

	sd := stddev(logs)
	target := math.Exp(math.Log(maxRatio) - sd)

	selected := -1
	for i := start; i < k; i++ {
		if path[i].DevianceRatio <= target {
			selected = i
		}
	}
	if selected < 0 {
		return start
	}

	return selected
}

// selectCriterion minimizes AIC or BIC over the path; ties go to the
// first minimal index.
//
//	AIC = -2*logLik + 2k
//	BIC = log(n)*k - 2*logLik
//
// with k the number of non-zero coefficients at the path point and n the
// total response count.
//
// Counting only non-zero coefficients is the lasso degrees-of-freedom
// estimate (as in glmnet), not the raw design-column count. The raw count
// would be the same at every path point, reducing both criteria to
// maximum log-likelihood and defeating the parsimony penalty.
func selectCriterion(path []PathPoint, strategy format.Strategy, totalCount float64) int {
	best := 0
	bestValue := math.Inf(1)
	logN := math.Log(math.Max(totalCount, 1))

	for i := range path {
		k := float64(path[i].NonZero)
		var value float64
		if strategy == format.StrategyAIC {
			value = -2*path[i].LogLik + 2*k
		} else {
			value = logN*k - 2*path[i].LogLik
		}
		if value < bestValue {
			bestValue = value
			best = i
		}
	}

	return best
}

// stddev computes the population standard deviation.
func stddev(values []float64) float64 {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}

	return math.Sqrt(ss / n)
}
