package encode

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ratetab/dataset"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
)

func trainingData(t *testing.T) *dataset.Dataset {
	t.Helper()

	ds := dataset.New()
	require.NoError(t, ds.AddStringColumn("Region", []string{"south", "north", "south", "west", "north"}))
	require.NoError(t, ds.AddNumericColumn("Age", []float64{45, 30, 50, 38, 62}))

	return ds
}

func TestBuild_CategoricalLevels(t *testing.T) {
	spec, err := Build(trainingData(t), []string{"Region", "Age"})
	require.NoError(t, err)
	require.Len(t, spec.Rules, 2)

	region := spec.Rule("Region")
	require.NotNil(t, region)
	require.Equal(t, format.KindCategorical, region.Kind)
	// Without a pinned reference, levels are sorted ascending and the
	// first one is the reference.
	require.Equal(t, []string{"north", "south", "west"}, region.Levels)
	require.Equal(t, "north", region.Reference())
}

func TestBuild_ReferenceLevelFirst(t *testing.T) {
	spec, err := Build(trainingData(t), []string{"Region"},
		WithReferenceLevels(map[string]string{"Region": "west"}))
	require.NoError(t, err)

	region := spec.Rule("Region")
	require.Equal(t, []string{"west", "north", "south"}, region.Levels)
	require.Equal(t, "west", region.Reference())
}

func TestBuild_UnknownReferenceLevel(t *testing.T) {
	_, err := Build(trainingData(t), []string{"Region"},
		WithReferenceLevels(map[string]string{"Region": "east"}))
	require.ErrorIs(t, err, errs.ErrUnknownReferenceLevel)
}

func TestBuild_ReferenceForNumericVariable(t *testing.T) {
	_, err := Build(trainingData(t), []string{"Region", "Age"},
		WithReferenceLevels(map[string]string{"Age": "45"}))
	require.ErrorIs(t, err, errs.ErrUnknownFactorVariable)
}

func TestBuild_EmptyDataset(t *testing.T) {
	// A dataset with columns but no rows must be rejected up front, not
	// fail deep inside the per-variable rule construction.
	ds := dataset.New()
	require.NoError(t, ds.AddNumericColumn("Age", nil))
	require.NoError(t, ds.AddStringColumn("Region", nil))

	_, err := Build(ds, []string{"Age"})
	require.ErrorIs(t, err, errs.ErrEmptyDataset)

	_, err = Build(ds, []string{"Region"})
	require.ErrorIs(t, err, errs.ErrEmptyDataset)
}

func TestBuild_TooManyLevels(t *testing.T) {
	values := make([]string, 30)
	for i := range values {
		values[i] = fmt.Sprintf("zone-%02d", i)
	}
	ds := dataset.New()
	require.NoError(t, ds.AddStringColumn("Zone", values))

	_, err := Build(ds, []string{"Zone"})
	require.ErrorIs(t, err, errs.ErrTooManyLevels)
}

func TestBuild_NumericBound(t *testing.T) {
	spec, err := Build(trainingData(t), []string{"Age"})
	require.NoError(t, err)

	age := spec.Rule("Age")
	require.Equal(t, format.KindNumeric, age.Kind)
	require.Equal(t, 30.0, age.Min)
	require.Equal(t, 62.0, age.Max)
}

func TestBuild_ClipOnlyTightens(t *testing.T) {
	tests := []struct {
		name    string
		clip    [2]float64
		wantMin float64
		wantMax float64
	}{
		{name: "Tightens", clip: [2]float64{35, 55}, wantMin: 35, wantMax: 55},
		{name: "WiderThanObserved", clip: [2]float64{0, 100}, wantMin: 30, wantMax: 62},
		{name: "TightensLowOnly", clip: [2]float64{40, 99}, wantMin: 40, wantMax: 62},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Build(trainingData(t), []string{"Age"},
				WithClipRanges(map[string][2]float64{"Age": tt.clip}))
			require.NoError(t, err)

			age := spec.Rule("Age")
			require.Equal(t, tt.wantMin, age.Min)
			require.Equal(t, tt.wantMax, age.Max)
		})
	}
}

func TestBuild_ClipForUnknownVariable(t *testing.T) {
	_, err := Build(trainingData(t), []string{"Age"},
		WithClipRanges(map[string][2]float64{"Income": {0, 1}}))
	require.ErrorIs(t, err, errs.ErrUnknownVariable)
}

func TestBuild_ClipForCategoricalVariable(t *testing.T) {
	_, err := Build(trainingData(t), []string{"Region"},
		WithClipRanges(map[string][2]float64{"Region": {0, 1}}))
	require.Error(t, err)
}

func TestApply_ClampsNumeric(t *testing.T) {
	spec, err := Build(trainingData(t), []string{"Age"},
		WithClipRanges(map[string][2]float64{"Age": {35, 55}}))
	require.NoError(t, err)

	rows := dataset.New()
	require.NoError(t, rows.AddNumericColumn("Age", []float64{20, 40, 70}))

	encoded, err := Apply(spec, rows)
	require.NoError(t, err)
	require.Equal(t, []float64{35, 40, 55}, encoded.Column("Age").Floats)

	// The input is never mutated.
	require.Equal(t, []float64{20, 40, 70}, rows.Column("Age").Floats)
}

func TestApply_UnseenLevel(t *testing.T) {
	spec, err := Build(trainingData(t), []string{"Region"})
	require.NoError(t, err)

	rows := dataset.New()
	require.NoError(t, rows.AddStringColumn("Region", []string{"north", "east"}))

	_, err = Apply(spec, rows)
	require.ErrorIs(t, err, errs.ErrUnseenLevel)
}

func TestApply_Idempotent(t *testing.T) {
	train := trainingData(t)
	spec, err := Build(train, []string{"Region", "Age"},
		WithClipRanges(map[string][2]float64{"Age": {35, 55}}))
	require.NoError(t, err)

	once, err := Apply(spec, train)
	require.NoError(t, err)
	twice, err := Apply(spec, once)
	require.NoError(t, err)

	require.Equal(t, once.Column("Age").Floats, twice.Column("Age").Floats)
	require.Equal(t, once.Column("Region").Strings, twice.Column("Region").Strings)
}

func TestRule_LevelIndex(t *testing.T) {
	spec, err := Build(trainingData(t), []string{"Region"})
	require.NoError(t, err)

	region := spec.Rule("Region")
	idx, ok := region.LevelIndex("south")
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = region.LevelIndex("east")
	require.False(t, ok)
}
