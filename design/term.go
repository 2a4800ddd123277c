// Package design expands encoded rows into a numeric design matrix from a
// declarative term specification.
//
// A TermSpec is an ordered list of term expressions. Each term is one of a
// fixed set of transforms: identity (a numeric value as-is), one-hot (one
// indicator column per non-reference categorical level), a natural cubic
// spline basis, or an interaction (the cross product of its parts'
// columns). No intercept column is emitted; the fitter handles the
// intercept separately.
//
// Alongside the matrix the package derives a TermMap associating every
// expanded column with the term it came from and with a group key joining
// the term's variable names. The group key is what merges a spline basis
// or an interaction back into one logical effect downstream.
package design

import (
	"fmt"
	"strings"

	"github.com/arloliu/ratetab/encode"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
)

// GroupSeparator joins variable names into a term's group key.
const GroupSeparator = ":"

// Term is one expression of a TermSpec.
type Term struct {
	Transform format.TransformKind `json:"transform"`

	// Variables names the underlying predictors: exactly one for
	// identity/one-hot/spline terms, two or more for interactions.
	Variables []string `json:"variables"`

	// Knots holds a spline term's interior knots.
	Knots []float64 `json:"knots,omitempty"`

	// Boundary holds a spline term's boundary knots [lo, hi].
	Boundary [2]float64 `json:"boundary,omitempty"`
}

// GroupKey returns the term's group key: its variable names joined in
// appearance order.
func (t *Term) GroupKey() string {
	return strings.Join(t.Variables, GroupSeparator)
}

// Identity creates a term that emits a numeric variable unchanged.
func Identity(variable string) Term {
	return Term{Transform: format.TransformIdentity, Variables: []string{variable}}
}

// OneHot creates a term that emits one indicator column per non-reference
// level of a categorical variable.
func OneHot(variable string) Term {
	return Term{Transform: format.TransformOneHot, Variables: []string{variable}}
}

// Spline creates a natural cubic spline term with the given interior knots
// and boundary knots. The basis has len(knots)+1 columns and is linear
// beyond the boundary knots.
func Spline(variable string, knots []float64, lo, hi float64) Term {
	return Term{
		Transform: format.TransformSpline,
		Variables: []string{variable},
		Knots:     knots,
		Boundary:  [2]float64{lo, hi},
	}
}

// Interaction creates a term crossing the main-effect columns of two or
// more variables.
func Interaction(variables ...string) Term {
	return Term{Transform: format.TransformInteraction, Variables: variables}
}

// TermSpec is an ordered list of term expressions.
type TermSpec struct {
	Terms []Term `json:"terms"`
}

// NewTermSpec creates a TermSpec from the given terms.
func NewTermSpec(terms ...Term) *TermSpec {
	return &TermSpec{Terms: terms}
}

// Validate checks every term against the encoding spec: each variable must
// have a rule, identity and spline terms need numeric variables, one-hot
// terms need categorical ones, interactions need at least two variables.
func (ts *TermSpec) Validate(spec *encode.Spec) error {
	for i := range ts.Terms {
		term := &ts.Terms[i]
		if len(term.Variables) == 0 {
			return fmt.Errorf("term %d has no variables", i)
		}

		for _, name := range term.Variables {
			if spec.Rule(name) == nil {
				return fmt.Errorf("%w: term %d references %q", errs.ErrUnknownVariable, i, name)
			}
		}

		switch term.Transform {
		case format.TransformIdentity, format.TransformSpline:
			rule := spec.Rule(term.Variables[0])
			if rule.Kind != format.KindNumeric {
				return fmt.Errorf("term %d: %s transform requires a numeric variable, %q is categorical",
					i, term.Transform, term.Variables[0])
			}
			if term.Transform == format.TransformSpline && len(term.Knots) == 0 {
				return fmt.Errorf("term %d: spline transform requires interior knots", i)
			}
		case format.TransformOneHot:
			rule := spec.Rule(term.Variables[0])
			if rule.Kind != format.KindCategorical {
				return fmt.Errorf("term %d: onehot transform requires a categorical variable, %q is numeric",
					i, term.Variables[0])
			}
		case format.TransformInteraction:
			if len(term.Variables) < 2 {
				return fmt.Errorf("term %d: interaction requires at least two variables", i)
			}
		default:
			return fmt.Errorf("term %d has unknown transform 0x%x", i, uint8(term.Transform))
		}
	}

	return nil
}

// MainEffect returns the natural single-variable term for a rule:
// one-hot for categorical variables, identity for numeric ones.
// Interactions expand each of their parts this way.
func MainEffect(rule *encode.Rule) Term {
	if rule.Kind == format.KindCategorical {
		return OneHot(rule.Variable)
	}

	return Identity(rule.Variable)
}
