package model

import (
	"github.com/arloliu/ratetab/dataset"
)

// ScoreFile streams a dataset file through the model, appending a
// PredictionColumn to every chunk, and writes the scored chunks to
// outPath.
//
// Scoring is a pure per-row function, so chunk boundaries never affect a
// row's score: concatenating the per-chunk output is identical to scoring
// the whole dataset at once. Chunks are processed strictly in file order,
// one at a time, which bounds peak memory at one row group. Output is
// staged in a private working file that only becomes outPath after every
// chunk has succeeded; on any failure the staging file is removed and
// outPath is left untouched.
//
// Parameters:
//   - inPath: Source dataset file
//   - outPath: Destination dataset file; must not already exist
//   - useOffset: Whether to add log(exposure) to the linear predictor
//   - opts: Writer options (compression) for the output file
//
// Returns:
//   - int: Total number of rows scored
//   - error: errs.ErrArtifactExists if outPath exists, or the first
//     chunk's read, score or write error
func (m *Model) ScoreFile(inPath, outPath string, useOffset bool, opts ...dataset.WriterOption) (int, error) {
	reader, err := dataset.NewReader(inPath)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	writer, err := dataset.NewWriter(outPath, opts...)
	if err != nil {
		return 0, err
	}

	for chunk, err := range reader.Chunks() {
		if err != nil {
			writer.Discard()
			return 0, err
		}

		pred, err := m.Score(chunk, useOffset)
		if err != nil {
			writer.Discard()
			return 0, err
		}

		scored := chunk.Clone()
		if err := scored.AddNumericColumn(PredictionColumn, pred); err != nil {
			writer.Discard()
			return 0, err
		}
		if err := writer.WriteChunk(scored); err != nil {
			writer.Discard()
			return 0, err
		}
	}

	rows := writer.Rows()
	if err := writer.Close(); err != nil {
		return 0, err
	}

	return rows, nil
}
