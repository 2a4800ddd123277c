package model

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ratetab/dataset"
	"github.com/arloliu/ratetab/design"
	"github.com/arloliu/ratetab/encode"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
	"github.com/arloliu/ratetab/glm"
)

// fitAgeModel trains a small single-predictor model used across the
// package tests.
func fitAgeModel(t *testing.T) (*Model, *dataset.Dataset) {
	t.Helper()

	train := dataset.New()
	require.NoError(t, train.AddNumericColumn("Age", []float64{30, 40, 50}))
	require.NoError(t, train.AddNumericColumn("Exposure", []float64{100, 100, 100}))
	require.NoError(t, train.AddNumericColumn("Claims", []float64{5, 6, 7}))

	spec, err := encode.Build(train, []string{"Age"},
		encode.WithClipRanges(map[string][2]float64{"Age": {25, 55}}))
	require.NoError(t, err)

	terms := design.NewTermSpec(design.Identity("Age"))
	encoded, err := encode.Apply(spec, train)
	require.NoError(t, err)
	matrix, _, err := design.Build(spec, terms, encoded)
	require.NoError(t, err)

	logOffset := make([]float64, train.NumRows())
	for i := range logOffset {
		logOffset[i] = math.Log(100.0)
	}

	res, err := glm.Fit(matrix, train.Column("Claims").Floats, logOffset, format.StrategyAIC)
	require.NoError(t, err)

	m := New(spec, terms, res.Intercept, res.Coefficients, "Exposure", res.Lambda, res.Strategy.String())

	return m, train
}

func TestScore_ScenarioAgeBand(t *testing.T) {
	m, _ := fitAgeModel(t)

	rows := dataset.New()
	require.NoError(t, rows.AddNumericColumn("Age", []float64{40}))
	require.NoError(t, rows.AddNumericColumn("Exposure", []float64{100}))

	pred, err := m.Score(rows, true)
	require.NoError(t, err)
	require.Len(t, pred, 1)

	// At the middle of the training grid with the training exposure the
	// expected count must land in the sanity band around 6.
	require.InDelta(t, 6.0, pred[0], 6.0*0.03)
}

func TestScore_Deterministic(t *testing.T) {
	m, train := fitAgeModel(t)

	first, err := m.Score(train, true)
	require.NoError(t, err)
	second, err := m.Score(train, true)
	require.NoError(t, err)
	require.Equal(t, first, second, "scoring must be bit-identical across calls")
}

func TestScore_WithoutOffsetIsRate(t *testing.T) {
	m, train := fitAgeModel(t)

	withOffset, err := m.Score(train, true)
	require.NoError(t, err)
	rate, err := m.Score(train, false)
	require.NoError(t, err)

	for i := range rate {
		require.InDelta(t, withOffset[i], rate[i]*100, 1e-9)
	}
}

func TestScore_NonPositiveExposure(t *testing.T) {
	m, _ := fitAgeModel(t)

	rows := dataset.New()
	require.NoError(t, rows.AddNumericColumn("Age", []float64{40}))
	require.NoError(t, rows.AddNumericColumn("Exposure", []float64{0}))

	_, err := m.Score(rows, true)
	require.ErrorIs(t, err, errs.ErrNonPositiveExposure)
}

func TestScore_ClampsOutOfBoundValues(t *testing.T) {
	m, _ := fitAgeModel(t)

	edge := dataset.New()
	require.NoError(t, edge.AddNumericColumn("Age", []float64{30}))
	require.NoError(t, edge.AddNumericColumn("Exposure", []float64{100}))

	outside := dataset.New()
	require.NoError(t, outside.AddNumericColumn("Age", []float64{10}))
	require.NoError(t, outside.AddNumericColumn("Exposure", []float64{100}))

	edgePred, err := m.Score(edge, true)
	require.NoError(t, err)
	outsidePred, err := m.Score(outside, true)
	require.NoError(t, err)

	// Age is clamped into the training bound, so 10 scores like 30.
	require.Equal(t, edgePred[0], outsidePred[0])
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	m, train := fitAgeModel(t)
	path := filepath.Join(t.TempDir(), "model.json")

	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, m.Intercept, loaded.Intercept)
	require.Equal(t, m.Coefficients, loaded.Coefficients)
	require.Equal(t, m.OffsetVar, loaded.OffsetVar)
	require.Equal(t, m.Strategy, loaded.Strategy)

	// The reloaded model scores identically.
	want, err := m.Score(train, true)
	require.NoError(t, err)
	got, err := loaded.Score(train, true)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSave_NeverOverwrites(t *testing.T) {
	m, _ := fitAgeModel(t)
	path := filepath.Join(t.TempDir(), "model.json")

	require.NoError(t, m.Save(path))
	require.ErrorIs(t, m.Save(path), errs.ErrArtifactExists)
}
