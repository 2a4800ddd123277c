// Package model defines the immutable scoring model produced by a
// training run: the preprocessing specification, the term specification
// and the selected coefficients, bundled into a serializable value that
// can score arbitrary new rows with bit-for-bit reproducible results.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/arloliu/ratetab/dataset"
	"github.com/arloliu/ratetab/design"
	"github.com/arloliu/ratetab/encode"
	"github.com/arloliu/ratetab/errs"
)

// PredictionColumn is the column name chunked scoring appends to the
// output dataset.
const PredictionColumn = "MODEL_PRED"

// Model is an immutable scoring bundle. Create one with New or Load and
// treat it as read-only thereafter; scoring never mutates it.
type Model struct {
	Encoding     *encode.Spec       `json:"encoding"`
	Terms        *design.TermSpec   `json:"terms"`
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
	OffsetVar    string             `json:"offset_var"`
	Lambda       float64            `json:"lambda"`
	Strategy     string             `json:"strategy"`
}

// New bundles the outcome of a fit into a scoring model.
func New(spec *encode.Spec, terms *design.TermSpec, intercept float64, coefficients map[string]float64, offsetVar string, lambda float64, strategy string) *Model {
	return &Model{
		Encoding:     spec,
		Terms:        terms,
		Intercept:    intercept,
		Coefficients: coefficients,
		OffsetVar:    offsetVar,
		Lambda:       lambda,
		Strategy:     strategy,
	}
}

// TermMap derives the column-to-group mapping of the model's design
// matrix.
func (m *Model) TermMap() (*design.TermMap, error) {
	return design.Columns(m.Encoding, m.Terms)
}

// Score computes the expected count for every row.
//
// The rows pass through the stored encoding spec, the design matrix is
// rebuilt from the stored term spec, and the linear predictor is the dot
// product with the stored coefficients plus the intercept. With useOffset
// the log of the named exposure column is added, so the result is an
// expected count; without it the result is the pure rate multiplier.
//
// Parameters:
//   - rows: Rows to score; must contain every predictor, and the offset
//     column when useOffset is set
//   - useOffset: Whether to add log(exposure) to the linear predictor
//
// Returns:
//   - []float64: exp(linear predictor) per row, in input order
//   - error: Encoding or validation error (errs.ErrUnseenLevel for
//     categorical values not observed during training)
func (m *Model) Score(rows *dataset.Dataset, useOffset bool) ([]float64, error) {
	encoded, err := encode.Apply(m.Encoding, rows)
	if err != nil {
		return nil, err
	}

	matrix, tm, err := design.Build(m.Encoding, m.Terms, encoded)
	if err != nil {
		return nil, err
	}

	n := rows.NumRows()
	eta := make([]float64, n)
	for i := range n {
		eta[i] = m.Intercept
	}
	for j := range tm.Columns {
		coef, ok := m.Coefficients[tm.Columns[j].Name]
		if !ok || coef == 0 {
			continue
		}
		col := matrix.Cols[j]
		for i := range n {
			eta[i] += coef * col[i]
		}
	}

	if useOffset {
		offset := rows.Column(m.OffsetVar)
		if offset == nil {
			return nil, fmt.Errorf("%w: offset column %q", errs.ErrUnknownVariable, m.OffsetVar)
		}
		for i := range n {
			v := offset.Floats[i]
			if v <= 0 {
				return nil, fmt.Errorf("%w: row %d has exposure %g", errs.ErrNonPositiveExposure, i, v)
			}
			eta[i] += math.Log(v)
		}
	}

	pred := make([]float64, n)
	for i := range n {
		pred[i] = math.Exp(eta[i])
	}

	return pred, nil
}

// Save persists the model as JSON at path. An existing file is never
// overwritten: Save fails with errs.ErrArtifactExists instead, so a model
// artifact is written at most once per training run.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", errs.ErrArtifactExists, path)
		}

		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	return file.Sync()
}

// Load reads a model saved with Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	return &m, nil
}
