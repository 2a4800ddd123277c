package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ratetab/format"
)

func makeDataset(t *testing.T) *Dataset {
	t.Helper()

	ds := New()
	require.NoError(t, ds.AddStringColumn("Region", []string{"north", "south", "south", "west"}))
	require.NoError(t, ds.AddNumericColumn("Age", []float64{30, 40, 50, 60}))
	require.NoError(t, ds.AddNumericColumn("Exposure", []float64{100, 120, 80, 90}))

	return ds
}

func TestDataset_AddColumns(t *testing.T) {
	ds := makeDataset(t)

	require.Equal(t, 4, ds.NumRows())
	require.Equal(t, 3, ds.NumCols())
	require.Equal(t, []string{"Region", "Age", "Exposure"}, ds.ColumnNames())

	region := ds.Column("Region")
	require.NotNil(t, region)
	require.Equal(t, format.KindCategorical, region.Kind)

	age := ds.Column("Age")
	require.NotNil(t, age)
	require.Equal(t, format.KindNumeric, age.Kind)

	require.Nil(t, ds.Column("Missing"))
}

func TestDataset_DuplicateColumn(t *testing.T) {
	ds := makeDataset(t)

	err := ds.AddNumericColumn("Age", []float64{1, 2, 3, 4})
	require.Error(t, err)
}

func TestDataset_LengthMismatch(t *testing.T) {
	ds := makeDataset(t)

	err := ds.AddNumericColumn("Short", []float64{1, 2})
	require.Error(t, err)
}

func TestDataset_Accessors(t *testing.T) {
	ds := makeDataset(t)

	v, err := ds.Float("Age", 1)
	require.NoError(t, err)
	require.Equal(t, 40.0, v)

	s, err := ds.String("Region", 0)
	require.NoError(t, err)
	require.Equal(t, "north", s)

	// Numeric columns format through String as well.
	s, err = ds.String("Age", 2)
	require.NoError(t, err)
	require.Equal(t, "50", s)

	_, err = ds.Float("Region", 0)
	require.Error(t, err)
}

func TestDataset_Clone(t *testing.T) {
	ds := makeDataset(t)
	clone := ds.Clone()

	clone.Column("Age").Floats[0] = 999
	require.Equal(t, 30.0, ds.Column("Age").Floats[0])
	require.Equal(t, ds.ColumnNames(), clone.ColumnNames())
}

func TestDataset_SliceAppend(t *testing.T) {
	ds := makeDataset(t)

	head, err := ds.Slice(0, 2)
	require.NoError(t, err)
	tail, err := ds.Slice(2, 4)
	require.NoError(t, err)
	require.Equal(t, 2, head.NumRows())
	require.Equal(t, 2, tail.NumRows())

	require.NoError(t, head.Append(tail))
	require.Equal(t, 4, head.NumRows())
	require.Equal(t, ds.Column("Age").Floats, head.Column("Age").Floats)
	require.Equal(t, ds.Column("Region").Strings, head.Column("Region").Strings)
}

func TestDataset_AppendLayoutMismatch(t *testing.T) {
	ds := makeDataset(t)

	other := New()
	require.NoError(t, other.AddNumericColumn("Age", []float64{1}))

	require.Error(t, ds.Append(other))
}

func TestDataset_ChunkBy(t *testing.T) {
	ds := makeDataset(t)

	var chunks []*Dataset
	for chunk := range ds.ChunkBy(3) {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 2)
	require.Equal(t, 3, chunks[0].NumRows())
	require.Equal(t, 1, chunks[1].NumRows())

	// Concatenating the chunks restores the original row order.
	joined := chunks[0].Clone()
	require.NoError(t, joined.Append(chunks[1]))
	require.Equal(t, ds.Column("Region").Strings, joined.Column("Region").Strings)
	require.Equal(t, ds.Column("Exposure").Floats, joined.Column("Exposure").Floats)
}
