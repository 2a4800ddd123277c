package dataset

import (
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
)

// Column is a single named column of a Dataset. Exactly one of Strings or
// Floats is populated, according to Kind.
type Column struct {
	Name    string
	Kind    format.VariableKind
	Strings []string
	Floats  []float64
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	if c.Kind == format.KindCategorical {
		return len(c.Strings)
	}

	return len(c.Floats)
}

// clone returns a deep copy of the column.
func (c *Column) clone() *Column {
	return &Column{
		Name:    c.Name,
		Kind:    c.Kind,
		Strings: slices.Clone(c.Strings),
		Floats:  slices.Clone(c.Floats),
	}
}

// Dataset is an ordered collection of equal-length columns.
//
// The zero value is not usable; create instances with New.
type Dataset struct {
	cols   []*Column
	byName map[string]int
	rows   int
}

// New creates an empty dataset.
func New() *Dataset {
	return &Dataset{byName: make(map[string]int)}
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int { return d.rows }

// NumCols returns the number of columns.
func (d *Dataset) NumCols() int { return len(d.cols) }

// ColumnNames returns the column names in their declared order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.cols))
	for i, col := range d.cols {
		names[i] = col.Name
	}

	return names
}

// Column returns the named column, or nil if it does not exist.
func (d *Dataset) Column(name string) *Column {
	if idx, ok := d.byName[name]; ok {
		return d.cols[idx]
	}

	return nil
}

// Columns returns the columns in declared order. The returned slice is
// shared with the dataset; callers must not modify it.
func (d *Dataset) Columns() []*Column { return d.cols }

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.byName[name]
	return ok
}

// addColumn validates and appends a column.
func (d *Dataset) addColumn(col *Column) error {
	if _, exists := d.byName[col.Name]; exists {
		return fmt.Errorf("duplicate column %q", col.Name)
	}
	if len(d.cols) > 0 && col.Len() != d.rows {
		return fmt.Errorf("column %q has %d rows, dataset has %d", col.Name, col.Len(), d.rows)
	}

	if len(d.cols) == 0 {
		d.rows = col.Len()
	}
	d.byName[col.Name] = len(d.cols)
	d.cols = append(d.cols, col)

	return nil
}

// AddStringColumn appends a categorical column. All columns of a dataset
// must have the same length; the first column added fixes the row count.
func (d *Dataset) AddStringColumn(name string, values []string) error {
	return d.addColumn(&Column{Name: name, Kind: format.KindCategorical, Strings: values})
}

// AddNumericColumn appends a numeric column.
func (d *Dataset) AddNumericColumn(name string, values []float64) error {
	return d.addColumn(&Column{Name: name, Kind: format.KindNumeric, Floats: values})
}

// String returns the value of the named categorical column at row i.
// Numeric columns are formatted with %g so categorical handling of numeric
// grouping variables stays deterministic.
func (d *Dataset) String(name string, i int) (string, error) {
	col := d.Column(name)
	if col == nil {
		return "", fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
	}
	if col.Kind == format.KindCategorical {
		return col.Strings[i], nil
	}

	return formatFloat(col.Floats[i]), nil
}

// Float returns the value of the named numeric column at row i.
func (d *Dataset) Float(name string, i int) (float64, error) {
	col := d.Column(name)
	if col == nil {
		return 0, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
	}
	if col.Kind != format.KindNumeric {
		return 0, fmt.Errorf("column %q is not numeric", name)
	}

	return col.Floats[i], nil
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := New()
	for _, col := range d.cols {
		// addColumn cannot fail on a valid source dataset.
		_ = out.addColumn(col.clone())
	}

	return out
}

// Slice returns a deep copy of rows [lo, hi).
func (d *Dataset) Slice(lo, hi int) (*Dataset, error) {
	if lo < 0 || hi > d.rows || lo > hi {
		return nil, fmt.Errorf("slice bounds [%d, %d) out of range for %d rows", lo, hi, d.rows)
	}

	out := New()
	for _, col := range d.cols {
		sliced := &Column{Name: col.Name, Kind: col.Kind}
		if col.Kind == format.KindCategorical {
			sliced.Strings = slices.Clone(col.Strings[lo:hi])
		} else {
			sliced.Floats = slices.Clone(col.Floats[lo:hi])
		}
		_ = out.addColumn(sliced)
	}

	return out, nil
}

// Append appends the rows of other to d. The column layouts must match
// exactly (same names, kinds and order).
func (d *Dataset) Append(other *Dataset) error {
	if err := sameLayout(d, other); err != nil {
		return err
	}

	for i, col := range d.cols {
		src := other.cols[i]
		if col.Kind == format.KindCategorical {
			col.Strings = append(col.Strings, src.Strings...)
		} else {
			col.Floats = append(col.Floats, src.Floats...)
		}
	}
	d.rows += other.rows

	return nil
}

// ChunkBy yields consecutive slices of at most chunkRows rows, in row
// order. A non-positive chunkRows yields the whole dataset as one chunk.
func (d *Dataset) ChunkBy(chunkRows int) iter.Seq[*Dataset] {
	return func(yield func(*Dataset) bool) {
		if chunkRows <= 0 || chunkRows >= d.rows {
			yield(d)
			return
		}
		for lo := 0; lo < d.rows; lo += chunkRows {
			hi := min(lo+chunkRows, d.rows)
			chunk, _ := d.Slice(lo, hi)
			if !yield(chunk) {
				return
			}
		}
	}
}

// sameLayout reports whether two datasets share the same ordered column
// layout.
func sameLayout(a, b *Dataset) error {
	if len(a.cols) != len(b.cols) {
		return fmt.Errorf("%w: %d vs %d columns", errs.ErrColumnMismatch, len(a.cols), len(b.cols))
	}
	for i, col := range a.cols {
		other := b.cols[i]
		if col.Name != other.Name || col.Kind != other.Kind {
			return fmt.Errorf("%w: column %d is %s(%s) vs %s(%s)",
				errs.ErrColumnMismatch, i, col.Name, col.Kind, other.Name, other.Kind)
		}
	}

	return nil
}

// formatFloat renders a float the way %g does, with integral values kept
// free of an exponent so grid labels read naturally.
func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}

	return fmt.Sprintf("%g", v)
}
