// Package ratetab fits penalized Poisson rate models on aggregated
// exposure/claim data and decomposes them into actuarial factor tables.
//
// The pipeline is: raw aggregated rows pass through a variable encoder
// (categorical leveling, numeric clipping), a declarative term
// specification expands them into a design matrix, a coordinate-descent
// elastic-net fitter traces a regularization path with log(exposure) as
// offset, one path point is selected by a 1se/AIC/BIC strategy, and the
// resulting scoring model is decomposed into one multiplicative factor
// table per term group.
//
// # Basic Usage
//
// Fitting and scoring through a session:
//
//	import "github.com/arloliu/ratetab"
//
//	sess, _ := ratetab.NewSession("work")
//	_ = sess.AddDataset("train", train)
//
//	result, err := sess.Fit(ratetab.FitRequest{
//	    Run:         "motor-2026q1",
//	    Dataset:     "train",
//	    Predictors:  []string{"Age", "Region"},
//	    OffsetVar:   "Exposure",
//	    ResponseVar: "Claims",
//	    Strategy:    "AIC",
//	})
//	if err != nil {
//	    // validation, sanity check or fitting failure
//	}
//
//	scored, _ := sess.Score("train", "train_scored", true)
//	tables, _ := sess.FactorTables()
//	_ = result.Tree // residual diagnostic
//	_ = scored
//	_ = tables
//
// # Package Structure
//
// This package provides the Session context object and thin wrappers
// around the topical packages. For fine-grained control use encode,
// design, glm, model, tree and factor directly; dataset holds the
// columnar in-memory table and its chunked binary file format.
package ratetab

import (
	"github.com/arloliu/ratetab/dataset"
	"github.com/arloliu/ratetab/model"
)

// OpenDataset reads a whole chunked dataset file into memory.
func OpenDataset(path string) (*dataset.Dataset, error) {
	return dataset.ReadAll(path)
}

// SaveDataset writes a dataset as a chunked file. The path must not
// already exist.
func SaveDataset(path string, ds *dataset.Dataset, opts ...dataset.WriterOption) error {
	return dataset.WriteAll(path, ds, dataset.DefaultChunkRows, opts...)
}

// LoadModel reads a persisted scoring model.
func LoadModel(path string) (*model.Model, error) {
	return model.Load(path)
}
