package format

type (
	VariableKind    uint8
	TransformKind   uint8
	CompressionType uint8
	Strategy        uint8
)

const (
	KindCategorical VariableKind = 0x1 // KindCategorical marks a leveled factor variable.
	KindNumeric     VariableKind = 0x2 // KindNumeric marks a clipped numeric variable.

	TransformIdentity    TransformKind = 0x1 // TransformIdentity emits the numeric value unchanged.
	TransformOneHot      TransformKind = 0x2 // TransformOneHot emits one column per non-reference level.
	TransformSpline      TransformKind = 0x3 // TransformSpline emits a natural cubic spline basis.
	TransformInteraction TransformKind = 0x4 // TransformInteraction crosses the columns of its parts.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.

	// Strategy values select one point along the regularization path.
	Strategy1SE Strategy = 0x1 // Strategy1SE backs off one standard deviation from the best deviance ratio.
	StrategyAIC Strategy = 0x2 // StrategyAIC minimizes the Akaike information criterion.
	StrategyBIC Strategy = 0x3 // StrategyBIC minimizes the Bayesian information criterion.
)

func (k VariableKind) String() string {
	switch k {
	case KindCategorical:
		return "categorical"
	case KindNumeric:
		return "numeric"
	default:
		return "unknown"
	}
}

func (t TransformKind) String() string {
	switch t {
	case TransformIdentity:
		return "identity"
	case TransformOneHot:
		return "onehot"
	case TransformSpline:
		return "spline"
	case TransformInteraction:
		return "interaction"
	default:
		return "unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

func (s Strategy) String() string {
	switch s {
	case Strategy1SE:
		return "1se"
	case StrategyAIC:
		return "AIC"
	case StrategyBIC:
		return "BIC"
	default:
		return "unknown"
	}
}

// ParseStrategy maps the external strategy names ("1se", "AIC", "BIC") to
// Strategy values. Returns Strategy(0) for unrecognized names; callers
// reject that with errs.ErrUnknownStrategy.
func ParseStrategy(name string) Strategy {
	switch name {
	case "1se":
		return Strategy1SE
	case "AIC", "aic":
		return StrategyAIC
	case "BIC", "bic":
		return StrategyBIC
	default:
		return Strategy(0)
	}
}
