// Package factor decomposes a fitted model's linear predictor into
// per-variable factor tables for rate-making review.
//
// For every term group, the design-matrix columns that jointly represent
// one logical effect, the decomposer builds a grid over the group's
// variable values, holds every other predictor at a representative level,
// and reads off the group's own contribution to the log linear predictor
// at each grid point. The exponentiated contribution is the multiplicative
// relativity an actuary reads from the table.
package factor

import (
	"fmt"
	"math"
	"strings"

	"github.com/arloliu/ratetab/dataset"
	"github.com/arloliu/ratetab/design"
	"github.com/arloliu/ratetab/encode"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
	"github.com/arloliu/ratetab/model"
)

// Column names appended to every factor table.
const (
	ContributionColumn = "contribution_log"
	MultiplierColumn   = "contribution_multiplier"
)

// Table is the factor table of one term group. Data holds one column per
// grid variable that varies across the table, plus the log contribution
// and its exponentiated multiplier.
type Table struct {
	Group string
	Data  *dataset.Dataset
}

// Decompose computes one factor table per term group of the model.
//
// The training data supplies the grid values and the representative
// levels the rest of the model is held at. Groups are returned in the
// order their columns first appear in the design matrix.
//
// Parameters:
//   - m: The fitted scoring model
//   - train: The training dataset the model was fitted on
//
// Returns:
//   - []Table: One table per term group, in first-appearance order
//   - error: Grid construction or encoding error
func Decompose(m *model.Model, train *dataset.Dataset) ([]Table, error) {
	tm, err := m.TermMap()
	if err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(tm.Groups()))
	for _, group := range tm.Groups() {
		table, err := decomposeGroup(m, tm, train, group)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", group, err)
		}
		tables = append(tables, Table{Group: group, Data: table})
	}

	return tables, nil
}

// decomposeGroup builds the grid for one group and attributes the group's
// columns of the linear predictor to each grid row.
func decomposeGroup(m *model.Model, tm *design.TermMap, train *dataset.Dataset, group string) (*dataset.Dataset, error) {
	groupVars := tm.GroupVariables(group)

	// Value sets of the group's own variables.
	values := make([]gridValues, len(groupVars))
	for i, name := range groupVars {
		rule := m.Encoding.Rule(name)
		if rule == nil {
			return nil, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
		}
		gv, err := valuesFor(rule, train)
		if err != nil {
			return nil, err
		}
		values[i] = gv
	}

	grid, err := crossProduct(groupVars, values)
	if err != nil {
		return nil, err
	}

	// Hold every other predictor at its representative level so only the
	// group's own columns contribute.
	for _, rule := range m.Encoding.Rules {
		if containsVar(groupVars, rule.Variable) {
			continue
		}
		if rule.Kind == format.KindCategorical {
			rep, err := firstObserved(train, rule.Variable)
			if err != nil {
				return nil, err
			}
			if err := grid.AddStringColumn(rule.Variable, fillString(rep, grid.NumRows())); err != nil {
				return nil, err
			}
		} else {
			rep := math.Floor((rule.Min + rule.Max) / 2)
			if err := grid.AddNumericColumn(rule.Variable, fillFloat(rep, grid.NumRows())); err != nil {
				return nil, err
			}
		}
	}

	encoded, err := encode.Apply(m.Encoding, grid)
	if err != nil {
		return nil, err
	}
	matrix, fullMap, err := design.Build(m.Encoding, m.Terms, encoded)
	if err != nil {
		return nil, err
	}

	// Sum basis times coefficient over exactly this group's columns; absent
	// coefficients (regularized to zero) contribute nothing.
	contrib := make([]float64, grid.NumRows())
	for _, j := range fullMap.GroupColumns(group) {
		coef, ok := m.Coefficients[fullMap.Columns[j].Name]
		if !ok || coef == 0 {
			continue
		}
		for i, v := range matrix.Cols[j] {
			contrib[i] += coef * v
		}
	}

	multiplier := make([]float64, len(contrib))
	for i, v := range contrib {
		multiplier[i] = math.Exp(v)
	}

	// Emit only the grid columns that vary; a table where nothing varies
	// collapses to a single row.
	out := dataset.New()
	for _, name := range groupVars {
		col := grid.Column(name)
		if !varies(col) {
			continue
		}
		if col.Kind == format.KindCategorical {
			if err := out.AddStringColumn(name, col.Strings); err != nil {
				return nil, err
			}
		} else {
			if err := out.AddNumericColumn(name, col.Floats); err != nil {
				return nil, err
			}
		}
	}
	if out.NumCols() == 0 {
		if err := out.AddNumericColumn(ContributionColumn, contrib[:1]); err != nil {
			return nil, err
		}
		if err := out.AddNumericColumn(MultiplierColumn, multiplier[:1]); err != nil {
			return nil, err
		}

		return out, nil
	}

	if err := out.AddNumericColumn(ContributionColumn, contrib); err != nil {
		return nil, err
	}
	if err := out.AddNumericColumn(MultiplierColumn, multiplier); err != nil {
		return nil, err
	}

	return out, nil
}

// gridValues is the value set of one grid variable.
type gridValues struct {
	kind    format.VariableKind
	strings []string
	floats  []float64
}

func (g gridValues) len() int {
	if g.kind == format.KindCategorical {
		return len(g.strings)
	}

	return len(g.floats)
}

// valuesFor chooses the grid values of a variable: a categorical variable
// contributes its training levels; a numeric variable with a proper bound
// contributes the integer sequence spanning the bound, falling back to
// its distinct training values when the bound is degenerate.
func valuesFor(rule *encode.Rule, train *dataset.Dataset) (gridValues, error) {
	if rule.Kind == format.KindCategorical {
		return gridValues{kind: format.KindCategorical, strings: rule.Levels}, nil
	}

	lo := math.Ceil(rule.Min)
	hi := math.Floor(rule.Max)
	if lo < hi {
		seq := make([]float64, 0, int(hi-lo)+1)
		for v := lo; v <= hi; v++ {
			seq = append(seq, v)
		}

		return gridValues{kind: format.KindNumeric, floats: seq}, nil
	}

	col := train.Column(rule.Variable)
	if col == nil {
		return gridValues{}, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, rule.Variable)
	}
	var distinct []float64
	seen := make(map[float64]struct{})
	for _, v := range col.Floats {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
	}

	return gridValues{kind: format.KindNumeric, floats: distinct}, nil
}

// crossProduct builds the deduplicated full cross product of the value
// sets, first variable varying slowest.
func crossProduct(vars []string, values []gridValues) (*dataset.Dataset, error) {
	rows := 1
	for _, gv := range values {
		rows *= gv.len()
	}
	if rows == 0 {
		return nil, fmt.Errorf("empty value set in grid")
	}

	cols := make([][]any, len(vars))
	repeat := rows
	for vi, gv := range values {
		repeat /= gv.len()
		col := make([]any, 0, rows)
		for len(col) < rows {
			if gv.kind == format.KindCategorical {
				for _, v := range gv.strings {
					for range repeat {
						col = append(col, v)
					}
				}
			} else {
				for _, v := range gv.floats {
					for range repeat {
						col = append(col, v)
					}
				}
			}
		}
		cols[vi] = col
	}

	// Deduplicate rows by their joined key, keeping first appearance.
	keep := make([]int, 0, rows)
	seen := make(map[string]struct{}, rows)
	var key strings.Builder
	for i := range rows {
		key.Reset()
		for vi := range vars {
			fmt.Fprintf(&key, "%v\x00", cols[vi][i])
		}
		if _, ok := seen[key.String()]; ok {
			continue
		}
		seen[key.String()] = struct{}{}
		keep = append(keep, i)
	}

	grid := dataset.New()
	for vi, name := range vars {
		if values[vi].kind == format.KindCategorical {
			out := make([]string, len(keep))
			for k, i := range keep {
				out[k] = cols[vi][i].(string)
			}
			if err := grid.AddStringColumn(name, out); err != nil {
				return nil, err
			}
		} else {
			out := make([]float64, len(keep))
			for k, i := range keep {
				out[k] = cols[vi][i].(float64)
			}
			if err := grid.AddNumericColumn(name, out); err != nil {
				return nil, err
			}
		}
	}

	return grid, nil
}

// firstObserved returns the first training value of a categorical column.
func firstObserved(train *dataset.Dataset, name string) (string, error) {
	col := train.Column(name)
	if col == nil {
		return "", fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
	}
	if len(col.Strings) == 0 {
		return "", fmt.Errorf("%w: column %q", errs.ErrEmptyDataset, name)
	}

	return col.Strings[0], nil
}

func fillString(v string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = v
	}

	return out
}

func fillFloat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}

	return out
}

func containsVar(vars []string, name string) bool {
	for _, v := range vars {
		if v == name {
			return true
		}
	}

	return false
}

func varies(col *dataset.Column) bool {
	if col.Kind == format.KindCategorical {
		for _, v := range col.Strings[1:] {
			if v != col.Strings[0] {
				return true
			}
		}

		return false
	}
	for _, v := range col.Floats[1:] {
		if v != col.Floats[0] {
			return true
		}
	}

	return false
}
