// Package errs defines the sentinel error values shared across ratetab.
//
// All errors are plain values so callers can classify failures with
// errors.Is after any amount of fmt.Errorf("%w") wrapping. The taxonomy
// mirrors the operations: input validation errors are always fatal and
// never retried; artifact conflicts require the caller to pick a new name;
// a sanity-check failure means the fitted model was discarded.
package errs

import "errors"

// Input validation errors. All fatal, reported before any model is trained.
var (
	// ErrTooManyLevels reports a categorical predictor with more than the
	// supported number of distinct training values.
	ErrTooManyLevels = errors.New("categorical variable has too many levels")

	// ErrUnknownFactorVariable reports a reference level supplied for a
	// variable that is not classified as categorical.
	ErrUnknownFactorVariable = errors.New("reference level supplied for non-categorical variable")

	// ErrNonPositiveExposure reports a training row whose exposure is zero
	// or negative.
	ErrNonPositiveExposure = errors.New("row has non-positive exposure")

	// ErrUnknownStrategy reports an unrecognized lambda selection strategy.
	ErrUnknownStrategy = errors.New("unknown lambda selection strategy")

	// ErrUnknownVariable reports a variable name that is not present in the
	// dataset or encoding specification.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrUnknownReferenceLevel reports a supplied reference level that is
	// not among a categorical variable's observed training values.
	ErrUnknownReferenceLevel = errors.New("reference level not observed in training data")
)

// Scoring-time errors.
var (
	// ErrUnseenLevel reports a categorical value at scoring time that was
	// not observed during training. It is surfaced rather than coerced.
	ErrUnseenLevel = errors.New("categorical value not observed during training")
)

// Artifact errors.
var (
	// ErrArtifactExists reports an output dataset or model file that
	// already exists. Existing artifacts are never overwritten.
	ErrArtifactExists = errors.New("artifact already exists")

	// ErrSanityCheck reports a training actual/expected ratio outside the
	// accepted band. The model is not persisted.
	ErrSanityCheck = errors.New("training actual/expected ratio outside sanity band")
)

// Dataset format errors.
var (
	// ErrInvalidMagic reports a dataset file that does not start with the
	// expected magic bytes.
	ErrInvalidMagic = errors.New("invalid dataset file magic")

	// ErrChecksumMismatch reports a chunk payload whose checksum does not
	// match the stored value.
	ErrChecksumMismatch = errors.New("chunk checksum mismatch")

	// ErrColumnMismatch reports a chunk whose column layout differs from
	// the first chunk of the file.
	ErrColumnMismatch = errors.New("chunk column layout mismatch")

	// ErrEmptyDataset reports an operation that requires at least one row.
	ErrEmptyDataset = errors.New("dataset has no rows")
)
