package design

import (
	"fmt"

	"github.com/arloliu/ratetab/dataset"
	"github.com/arloliu/ratetab/encode"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
)

// ColumnInfo describes one expanded design-matrix column: the name it is
// keyed by in the coefficient vector, the term it came from, and the group
// key merging columns that jointly represent one logical effect.
type ColumnInfo struct {
	Name      string
	Term      int
	Group     string
	Variables []string
}

// TermMap maps expanded column names back to their terms and groups.
type TermMap struct {
	Columns []ColumnInfo
}

// Groups returns the distinct group keys in first-appearance order.
func (tm *TermMap) Groups() []string {
	var groups []string
	seen := make(map[string]struct{})
	for i := range tm.Columns {
		g := tm.Columns[i].Group
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		groups = append(groups, g)
	}

	return groups
}

// GroupColumns returns the indexes of the columns belonging to a group.
func (tm *TermMap) GroupColumns(group string) []int {
	var idxs []int
	for i := range tm.Columns {
		if tm.Columns[i].Group == group {
			idxs = append(idxs, i)
		}
	}

	return idxs
}

// GroupVariables returns the underlying variable names of a group, in the
// group's term order.
func (tm *TermMap) GroupVariables(group string) []string {
	for i := range tm.Columns {
		if tm.Columns[i].Group == group {
			return tm.Columns[i].Variables
		}
	}

	return nil
}

// Matrix is a column-major design matrix. Cols[j][i] is the value of
// column j at row i.
type Matrix struct {
	Names []string
	Cols  [][]float64
	Rows  int
}

// atomKind discriminates the factors an expanded column multiplies.
type atomKind uint8

const (
	atomIdentity  atomKind = iota + 1 // the clamped numeric value
	atomIndicator                     // 1 when the categorical value equals level
	atomSpline                        // one basis column of a natural spline
)

// atom is one multiplicative factor of an expanded column.
type atom struct {
	kind      atomKind
	variable  string
	level     string         // indicator level
	spline    *naturalSpline // shared across a spline term's columns
	splineIdx int
}

// columnDef is one expanded column: its name and the atoms whose product
// gives the column value for a row.
type columnDef struct {
	name  string
	atoms []atom
}

// expandTerm produces the column definitions of a single term.
func expandTerm(spec *encode.Spec, term *Term) ([]columnDef, error) {
	switch term.Transform {
	case format.TransformIdentity:
		return []columnDef{{
			name:  term.Variables[0],
			atoms: []atom{{kind: atomIdentity, variable: term.Variables[0]}},
		}}, nil

	case format.TransformOneHot:
		rule := spec.Rule(term.Variables[0])
		defs := make([]columnDef, 0, len(rule.Levels)-1)
		for _, level := range rule.Levels[1:] {
			defs = append(defs, columnDef{
				name:  fmt.Sprintf("%s=%s", rule.Variable, level),
				atoms: []atom{{kind: atomIndicator, variable: rule.Variable, level: level}},
			})
		}

		return defs, nil

	case format.TransformSpline:
		basis := newNaturalSpline(term.Knots, term.Boundary[0], term.Boundary[1])
		defs := make([]columnDef, basis.dim())
		for j := range basis.dim() {
			defs[j] = columnDef{
				name:  fmt.Sprintf("ns(%s).%d", term.Variables[0], j+1),
				atoms: []atom{{kind: atomSpline, variable: term.Variables[0], spline: basis, splineIdx: j}},
			}
		}

		return defs, nil

	case format.TransformInteraction:
		// Cross product of each part's main-effect columns, in part order.
		parts := make([][]columnDef, len(term.Variables))
		for i, name := range term.Variables {
			main := MainEffect(spec.Rule(name))
			defs, err := expandTerm(spec, &main)
			if err != nil {
				return nil, err
			}
			parts[i] = defs
		}

		defs := parts[0]
		for _, part := range parts[1:] {
			crossed := make([]columnDef, 0, len(defs)*len(part))
			for _, left := range defs {
				for _, right := range part {
					atoms := make([]atom, 0, len(left.atoms)+len(right.atoms))
					atoms = append(atoms, left.atoms...)
					atoms = append(atoms, right.atoms...)
					crossed = append(crossed, columnDef{
						name:  left.name + GroupSeparator + right.name,
						atoms: atoms,
					})
				}
			}
			defs = crossed
		}

		return defs, nil

	default:
		return nil, fmt.Errorf("unknown transform 0x%x", uint8(term.Transform))
	}
}

// expand produces all column definitions and the TermMap for a spec.
func expand(spec *encode.Spec, ts *TermSpec) ([]columnDef, *TermMap, error) {
	if err := ts.Validate(spec); err != nil {
		return nil, nil, err
	}

	var defs []columnDef
	tm := &TermMap{}
	for i := range ts.Terms {
		term := &ts.Terms[i]
		termDefs, err := expandTerm(spec, term)
		if err != nil {
			return nil, nil, err
		}
		for _, def := range termDefs {
			tm.Columns = append(tm.Columns, ColumnInfo{
				Name:      def.name,
				Term:      i,
				Group:     term.GroupKey(),
				Variables: term.Variables,
			})
		}
		defs = append(defs, termDefs...)
	}

	return defs, tm, nil
}

// Columns derives the TermMap without building matrix values. The column
// set depends only on the encoding spec and the term spec, never on data.
func Columns(spec *encode.Spec, ts *TermSpec) (*TermMap, error) {
	_, tm, err := expand(spec, ts)
	return tm, err
}

// Build expands encoded rows into a design matrix.
//
// The rows must already have been passed through encode.Apply, so numeric
// values are clamped and categorical values are known levels. No intercept
// column is emitted.
//
// Parameters:
//   - spec: The encoding specification the rows were encoded with
//   - ts: The term specification
//   - rows: Encoded rows
//
// Returns:
//   - *Matrix: Column-major design matrix
//   - *TermMap: Column-to-term/group mapping
//   - error: Validation or lookup error
func Build(spec *encode.Spec, ts *TermSpec, rows *dataset.Dataset) (*Matrix, *TermMap, error) {
	defs, tm, err := expand(spec, ts)
	if err != nil {
		return nil, nil, err
	}

	n := rows.NumRows()
	m := &Matrix{
		Names: make([]string, len(defs)),
		Cols:  make([][]float64, len(defs)),
		Rows:  n,
	}
	for j, def := range defs {
		m.Names[j] = def.name
		m.Cols[j] = make([]float64, n)
	}

	// Resolve each referenced variable's column once.
	colCache := make(map[string]*dataset.Column)
	for _, def := range defs {
		for _, a := range def.atoms {
			if _, ok := colCache[a.variable]; ok {
				continue
			}
			col := rows.Column(a.variable)
			if col == nil {
				return nil, nil, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, a.variable)
			}
			colCache[a.variable] = col
		}
	}

	maxDim := 0
	for _, def := range defs {
		for _, a := range def.atoms {
			if a.kind == atomSpline && a.spline.dim() > maxDim {
				maxDim = a.spline.dim()
			}
		}
	}
	splineBuf := make([]float64, maxDim)
	for j, def := range defs {
		out := m.Cols[j]
		for i := range n {
			v := 1.0
			for _, a := range def.atoms {
				col := colCache[a.variable]
				switch a.kind {
				case atomIdentity:
					v *= col.Floats[i]
				case atomIndicator:
					if col.Strings[i] != a.level {
						v = 0
					}
				case atomSpline:
					splineBuf = splineBuf[:a.spline.dim()]
					a.spline.eval(col.Floats[i], splineBuf)
					v *= splineBuf[a.splineIdx]
				}
				if v == 0 {
					break
				}
			}
			out[i] = v
		}
	}

	return m, tm, nil
}
