package projector

import "gonum.org/v1/gonum/mat"

// Reducer is a dimensionality reduction strategy: fit once on a reference
// batch (rows = samples, columns = features), then project any number of
// batches with the same feature dimensionality into k output columns.
//
// Implementations do not need to be safe for concurrent use.
type Reducer interface {
	// Fit learns the projection from X. Fitting again discards the previous model.
	Fit(X mat.Matrix) error

	// Transform projects X into the fitted space. The result has the same
	// number of rows as X and Components() columns.
	Transform(X mat.Matrix) (*mat.Dense, error)

	// Components returns the output dimensionality k.
	Components() int
}
