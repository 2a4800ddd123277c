package ratetab

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/arloliu/ratetab/dataset"
	"github.com/arloliu/ratetab/design"
	"github.com/arloliu/ratetab/encode"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/factor"
	"github.com/arloliu/ratetab/format"
	"github.com/arloliu/ratetab/glm"
	"github.com/arloliu/ratetab/model"
	"github.com/arloliu/ratetab/tree"
)

// sanityBand bounds the acceptable training actual/expected ratio: a
// fitted model whose |log(A/E)| reaches log(sanityBand) is discarded.
const sanityBand = 1.03

// Session is the explicit context object every operation runs against.
// It owns a workspace directory for persisted artifacts, the named
// datasets of the run, and at most one fitted model.
//
// A Session replaces process-wide state: nothing in this module touches
// globals, and two Sessions with different directories never interact.
// Sessions are not safe for concurrent use.
type Session struct {
	dir      string
	datasets map[string]*dataset.Dataset
	model    *model.Model
	train    string
}

// NewSession opens a session rooted at dir, creating the directory when
// it does not exist.
func NewSession(dir string) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return &Session{
		dir:      dir,
		datasets: make(map[string]*dataset.Dataset),
	}, nil
}

// Dir returns the workspace directory.
func (s *Session) Dir() string { return s.dir }

// AddDataset registers an in-memory dataset under a name. Names are
// write-once within a session: registering an existing name fails with
// errs.ErrArtifactExists.
func (s *Session) AddDataset(name string, ds *dataset.Dataset) error {
	if _, ok := s.datasets[name]; ok {
		return fmt.Errorf("%w: dataset %q", errs.ErrArtifactExists, name)
	}
	s.datasets[name] = ds

	return nil
}

// LoadDataset reads a dataset file from the workspace into a named slot.
func (s *Session) LoadDataset(name string) error {
	ds, err := dataset.ReadAll(s.DatasetPath(name))
	if err != nil {
		return err
	}

	return s.AddDataset(name, ds)
}

// Dataset looks up a registered dataset by name.
func (s *Session) Dataset(name string) (*dataset.Dataset, error) {
	ds, ok := s.datasets[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q", name)
	}

	return ds, nil
}

// Model returns the session's fitted model, or nil before a successful
// Fit.
func (s *Session) Model() *model.Model { return s.model }

// DatasetPath returns the workspace file path of a named dataset.
func (s *Session) DatasetPath(name string) string {
	return filepath.Join(s.dir, name+".rtd")
}

// ModelPath returns the workspace file path of a run's model artifact.
func (s *Session) ModelPath(run string) string {
	return filepath.Join(s.dir, run+".model.json")
}

// FitRequest names everything a training run needs.
type FitRequest struct {
	// Run names the training run; the model artifact is persisted as
	// <run>.model.json in the workspace.
	Run string
	// Dataset is the registered training dataset.
	Dataset string
	// Predictors lists the predictor variables.
	Predictors []string
	// Terms declares the design-matrix terms. Nil means one main-effect
	// term per predictor: one-hot for categorical variables, identity
	// for numeric ones.
	Terms *design.TermSpec
	// ReferenceLevels optionally pins the reference level of categorical
	// predictors.
	ReferenceLevels map[string]string
	// ClipRanges optionally tightens the bound of numeric predictors.
	ClipRanges map[string][2]float64
	// OffsetVar is the exposure column; it enters as log(exposure) and
	// must be strictly positive.
	OffsetVar string
	// ResponseVar is the observed count column.
	ResponseVar string
	// Strategy selects the path point: "1se", "AIC" or "BIC".
	Strategy string
	// FitOptions tune the regularization path.
	FitOptions []glm.FitOption
	// TreeOptions tune the diagnostic tree.
	TreeOptions []tree.Option
}

// FitResult is what a training run hands back to the caller.
type FitResult struct {
	// Model is the fitted (or reloaded) scoring model.
	Model *model.Model
	// Tree is the residual diagnostic tree; nil when the run reused an
	// existing artifact.
	Tree *tree.Tree
	// ActualExpected is the training actual/expected ratio; zero when
	// the run reused an existing artifact.
	ActualExpected float64
	// Path is the full regularization path; nil on reuse.
	Path *glm.Result
	// Reused reports that a persisted model artifact already existed
	// and the run was a guarded no-op.
	Reused bool
}

// Fit trains a penalized Poisson model and persists it as the run's
// model artifact.
//
// When the run's artifact already exists the call is a guarded no-op:
// the persisted model is loaded and returned unchanged, and nothing is
// retrained or overwritten.
//
// A fresh fit builds the encoding spec from the training data, expands
// the design matrix, fits the regularization path with log(exposure) as
// offset, selects one point by the requested strategy, and then checks
// the training actual/expected ratio. A ratio outside the 3% band
// fails with errs.ErrSanityCheck and the model is not persisted.
//
// Returns:
//   - *FitResult: The model, diagnostic tree and training A/E ratio
//   - error: Validation, fitting or persistence error
func (s *Session) Fit(req FitRequest) (*FitResult, error) {
	artifact := s.ModelPath(req.Run)
	if _, err := os.Stat(artifact); err == nil {
		m, err := model.Load(artifact)
		if err != nil {
			return nil, err
		}
		s.model = m
		s.train = req.Dataset

		return &FitResult{Model: m, Reused: true}, nil
	}

	strategy := format.ParseStrategy(req.Strategy)
	if strategy == format.Strategy(0) {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownStrategy, req.Strategy)
	}

	train, err := s.Dataset(req.Dataset)
	if err != nil {
		return nil, err
	}

	response := train.Column(req.ResponseVar)
	if response == nil || response.Kind != format.KindNumeric {
		return nil, fmt.Errorf("%w: response column %q", errs.ErrUnknownVariable, req.ResponseVar)
	}
	offset := train.Column(req.OffsetVar)
	if offset == nil || offset.Kind != format.KindNumeric {
		return nil, fmt.Errorf("%w: offset column %q", errs.ErrUnknownVariable, req.OffsetVar)
	}
	logOffset := make([]float64, train.NumRows())
	for i, v := range offset.Floats {
		if v <= 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("%w: row %d has exposure %g", errs.ErrNonPositiveExposure, i, v)
		}
		logOffset[i] = math.Log(v)
	}

	enc, err := encode.Build(train, req.Predictors,
		encode.WithReferenceLevels(req.ReferenceLevels),
		encode.WithClipRanges(req.ClipRanges),
	)
	if err != nil {
		return nil, err
	}

	terms := req.Terms
	if terms == nil {
		terms = mainEffects(enc)
	}
	if err := terms.Validate(enc); err != nil {
		return nil, err
	}

	encoded, err := encode.Apply(enc, train)
	if err != nil {
		return nil, err
	}
	matrix, _, err := design.Build(enc, terms, encoded)
	if err != nil {
		return nil, err
	}

	result, err := glm.Fit(matrix, response.Floats, logOffset, strategy, req.FitOptions...)
	if err != nil {
		return nil, err
	}

	m := model.New(enc, terms, result.Intercept, result.Coefficients,
		req.OffsetVar, result.Lambda, strategy.String())

	pred, err := m.Score(train, true)
	if err != nil {
		return nil, err
	}
	var actual, expected float64
	for i, v := range response.Floats {
		actual += v
		expected += pred[i]
	}
	ratio := actual / expected
	if math.Abs(math.Log(ratio)) >= math.Log(sanityBand) {
		return nil, fmt.Errorf("%w: training actual/expected ratio %.6f outside %.0f%% band",
			errs.ErrSanityCheck, ratio, (sanityBand-1)*100)
	}

	// The diagnostic tree accepts at most tree.MaxVariables grouping
	// variables; wider fits group on the leading predictors. The tree is
	// fitted before the artifact is persisted: a run that fails here can
	// be retried, while a saved artifact would turn every retry into a
	// guarded no-op without a diagnostic.
	groupVars := req.Predictors
	if len(groupVars) > tree.MaxVariables {
		groupVars = groupVars[:tree.MaxVariables]
	}
	diag, err := tree.Fit(train, groupVars, response.Floats, pred, req.TreeOptions...)
	if err != nil {
		return nil, err
	}

	if err := m.Save(artifact); err != nil {
		return nil, err
	}

	s.model = m
	s.train = req.Dataset

	return &FitResult{
		Model:          m,
		Tree:           diag,
		ActualExpected: ratio,
		Path:           result,
	}, nil
}

// Score scores a registered dataset with the session's model and
// registers the result as a new dataset: the input columns plus
// model.PredictionColumn. An already-registered output name fails with
// errs.ErrArtifactExists.
func (s *Session) Score(input, output string, useOffset bool) (*dataset.Dataset, error) {
	if s.model == nil {
		return nil, fmt.Errorf("no fitted model in session")
	}
	if _, ok := s.datasets[output]; ok {
		return nil, fmt.Errorf("%w: dataset %q", errs.ErrArtifactExists, output)
	}

	ds, err := s.Dataset(input)
	if err != nil {
		return nil, err
	}

	pred, err := s.model.Score(ds, useOffset)
	if err != nil {
		return nil, err
	}

	out := ds.Clone()
	if err := out.AddNumericColumn(model.PredictionColumn, pred); err != nil {
		return nil, err
	}
	s.datasets[output] = out

	return out, nil
}

// ScoreFile streams a workspace dataset file through the session's
// model chunk by chunk and writes the scored dataset under the output
// name. The output file must not already exist.
func (s *Session) ScoreFile(input, output string, useOffset bool, opts ...dataset.WriterOption) (int, error) {
	if s.model == nil {
		return 0, fmt.Errorf("no fitted model in session")
	}

	return s.model.ScoreFile(s.DatasetPath(input), s.DatasetPath(output), useOffset, opts...)
}

// FactorTables decomposes the session's model into one factor table per
// term group, keyed by group name.
func (s *Session) FactorTables() (map[string]*dataset.Dataset, error) {
	if s.model == nil {
		return nil, fmt.Errorf("no fitted model in session")
	}
	train, err := s.Dataset(s.train)
	if err != nil {
		return nil, err
	}

	tables, err := factor.Decompose(s.model, train)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*dataset.Dataset, len(tables))
	for _, t := range tables {
		out[t.Group] = t.Data
	}

	return out, nil
}

// mainEffects builds the default term spec: one term per encoded
// variable, one-hot for categorical and identity for numeric.
func mainEffects(enc *encode.Spec) *design.TermSpec {
	terms := make([]design.Term, 0, len(enc.Rules))
	for i := range enc.Rules {
		terms = append(terms, design.MainEffect(&enc.Rules[i]))
	}

	return design.NewTermSpec(terms...)
}
