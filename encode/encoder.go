// Package encode builds and applies the deterministic preprocessing
// specification used by every fit and scoring call.
//
// A Spec is built once from training data and is immutable thereafter:
// categorical predictors get a fixed level ordering with the reference
// level first, numeric predictors get a clip range bounded by their
// observed training range. Applying the same Spec to the same rows always
// produces identical output, and applying it twice is a no-op on the
// second pass.
package encode

import (
	"fmt"
	"slices"

	"github.com/arloliu/ratetab/dataset"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
	"github.com/arloliu/ratetab/internal/options"
)

// MaxLevels is the largest number of distinct values a categorical
// predictor may have. More levels than this is a modeling mistake
// (typically an ID-like column) and is rejected at build time.
const MaxLevels = 25

// Rule is the preprocessing rule for one predictor variable.
type Rule struct {
	Variable string              `json:"variable"`
	Kind     format.VariableKind `json:"kind"`

	// Levels holds a categorical variable's level ordering, reference
	// level first. Empty for numeric variables.
	Levels []string `json:"levels,omitempty"`

	// Min and Max bound a numeric variable. Values outside the range are
	// clamped on apply. Zero for categorical variables.
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
}

// Reference returns a categorical rule's reference level.
func (r *Rule) Reference() string {
	if len(r.Levels) == 0 {
		return ""
	}

	return r.Levels[0]
}

// LevelIndex returns the position of value in the rule's level ordering.
func (r *Rule) LevelIndex(value string) (int, bool) {
	idx := slices.Index(r.Levels, value)
	if idx < 0 {
		return 0, false
	}

	return idx, true
}

// Clamp clips a numeric value into the rule's bound.
func (r *Rule) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}

	return v
}

// Spec is an ordered, immutable preprocessing specification.
type Spec struct {
	Rules []Rule `json:"rules"`
}

// Rule returns the rule for the named variable, or nil.
func (s *Spec) Rule(name string) *Rule {
	for i := range s.Rules {
		if s.Rules[i].Variable == name {
			return &s.Rules[i]
		}
	}

	return nil
}

// Variables returns the predictor names in rule order.
func (s *Spec) Variables() []string {
	names := make([]string, len(s.Rules))
	for i := range s.Rules {
		names[i] = s.Rules[i].Variable
	}

	return names
}

// builder collects Build configuration.
type builder struct {
	references map[string]string
	clips      map[string][2]float64
}

// BuildOption configures Build.
type BuildOption = options.Option[*builder]

// WithReferenceLevels forces the reference level of categorical variables.
// Each named variable must be categorical and the level must be among its
// observed training values.
func WithReferenceLevels(references map[string]string) BuildOption {
	return options.NoError(func(b *builder) {
		b.references = references
	})
}

// WithClipRanges supplies [lo, hi] clip ranges for numeric variables. A
// clip only ever tightens the observed training range; bounds outside it
// are ignored.
func WithClipRanges(clips map[string][2]float64) BuildOption {
	return options.NoError(func(b *builder) {
		b.clips = clips
	})
}

// Build constructs a Spec from training data.
//
// Parameters:
//   - train: Training dataset
//   - vars: Predictor variable names, in model order
//   - opts: Optional reference levels and clip ranges
//
// Returns:
//   - *Spec: The preprocessing specification
//   - error: errs.ErrEmptyDataset, errs.ErrUnknownVariable,
//     errs.ErrTooManyLevels, errs.ErrUnknownFactorVariable or
//     errs.ErrUnknownReferenceLevel
func Build(train *dataset.Dataset, vars []string, opts ...BuildOption) (*Spec, error) {
	if train.NumRows() == 0 {
		return nil, fmt.Errorf("%w: cannot build encoding rules", errs.ErrEmptyDataset)
	}

	var cfg builder
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	spec := &Spec{Rules: make([]Rule, 0, len(vars))}
	for _, name := range vars {
		col := train.Column(name)
		if col == nil {
			return nil, fmt.Errorf("%w: predictor %q", errs.ErrUnknownVariable, name)
		}

		switch col.Kind {
		case format.KindCategorical:
			rule, err := buildCategorical(name, col.Strings, cfg.references[name])
			if err != nil {
				return nil, err
			}
			spec.Rules = append(spec.Rules, rule)
		case format.KindNumeric:
			spec.Rules = append(spec.Rules, buildNumeric(name, col.Floats, cfg.clips))
		default:
			return nil, fmt.Errorf("column %q has unknown kind 0x%x", name, uint8(col.Kind))
		}
	}

	// Reference levels and clips must target variables the spec classified
	// as categorical resp. numeric.
	for name := range cfg.references {
		rule := spec.Rule(name)
		if rule == nil || rule.Kind != format.KindCategorical {
			return nil, fmt.Errorf("%w: %q", errs.ErrUnknownFactorVariable, name)
		}
	}
	for name := range cfg.clips {
		rule := spec.Rule(name)
		if rule == nil {
			return nil, fmt.Errorf("%w: clip range for %q", errs.ErrUnknownVariable, name)
		}
		if rule.Kind != format.KindNumeric {
			return nil, fmt.Errorf("clip range supplied for categorical variable %q", name)
		}
	}

	return spec, nil
}

// buildCategorical levels one categorical predictor: reference level first
// (when supplied), remaining distinct values in ascending sorted order.
func buildCategorical(name string, values []string, reference string) (Rule, error) {
	distinct := make([]string, 0, 8)
	seen := make(map[string]struct{}, 8)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
		if len(distinct) > MaxLevels {
			return Rule{}, fmt.Errorf("%w: %q has more than %d distinct values",
				errs.ErrTooManyLevels, name, MaxLevels)
		}
	}
	slices.Sort(distinct)

	if reference != "" {
		if _, ok := seen[reference]; !ok {
			return Rule{}, fmt.Errorf("%w: %q for variable %q",
				errs.ErrUnknownReferenceLevel, reference, name)
		}
		levels := make([]string, 0, len(distinct))
		levels = append(levels, reference)
		for _, v := range distinct {
			if v != reference {
				levels = append(levels, v)
			}
		}

		return Rule{Variable: name, Kind: format.KindCategorical, Levels: levels}, nil
	}

	return Rule{Variable: name, Kind: format.KindCategorical, Levels: distinct}, nil
}

// buildNumeric bounds one numeric predictor by its observed range,
// tightened by any supplied clip. Clips never widen the observed range.
func buildNumeric(name string, values []float64, clips map[string][2]float64) Rule {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	if clip, ok := clips[name]; ok {
		lo = max(lo, clip[0])
		hi = min(hi, clip[1])
	}

	return Rule{Variable: name, Kind: format.KindNumeric, Min: lo, Max: hi}
}

// Apply transforms rows according to the spec: numeric predictors are
// clamped into their bound, categorical values are validated against the
// training levels. Columns outside the spec pass through unchanged.
//
// Returns errs.ErrUnseenLevel for a categorical value that was not
// observed during training; unseen values are never coerced.
func Apply(spec *Spec, rows *dataset.Dataset) (*dataset.Dataset, error) {
	out := rows.Clone()
	for i := range spec.Rules {
		rule := &spec.Rules[i]
		col := out.Column(rule.Variable)
		if col == nil {
			return nil, fmt.Errorf("%w: predictor %q", errs.ErrUnknownVariable, rule.Variable)
		}

		switch rule.Kind {
		case format.KindCategorical:
			if col.Kind != format.KindCategorical {
				return nil, fmt.Errorf("column %q is numeric, spec expects categorical", rule.Variable)
			}
			allowed := make(map[string]struct{}, len(rule.Levels))
			for _, level := range rule.Levels {
				allowed[level] = struct{}{}
			}
			for _, v := range col.Strings {
				if _, ok := allowed[v]; !ok {
					return nil, fmt.Errorf("%w: value %q of variable %q",
						errs.ErrUnseenLevel, v, rule.Variable)
				}
			}
		case format.KindNumeric:
			if col.Kind != format.KindNumeric {
				return nil, fmt.Errorf("column %q is categorical, spec expects numeric", rule.Variable)
			}
			for j, v := range col.Floats {
				col.Floats[j] = rule.Clamp(v)
			}
		}
	}

	return out, nil
}
