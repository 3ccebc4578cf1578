package projector

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA is a linear Reducer: it centers the data and projects it onto the
// top-k right singular vectors of the centered batch.
//
// Component signs are normalized so that the loading with the largest
// absolute value in each component is positive, which makes repeated fits
// on the same batch produce identical output.
type PCA struct {
	k int

	mean       []float64  // per-feature means of the fit batch
	components *mat.Dense // D x k, columns are principal axes
	variance   []float64  // explained variance ratio per component
}

// NewPCA returns an unfitted PCA reducer producing k output columns.
func NewPCA(k int) *PCA {
	return &PCA{k: k}
}

// Components implements Reducer.
func (p *PCA) Components() int { return p.k }

// Fit implements Reducer.
func (p *PCA) Fit(X mat.Matrix) error {
	if p.k <= 0 {
		return fmt.Errorf("%w: n_components must be positive, got %d", ErrInvalidInput, p.k)
	}
	n, d, err := validateBatch(X)
	if err != nil {
		return err
	}
	if n < p.k {
		return fmt.Errorf("%w: %d samples for %d components", ErrInsufficientSamples, n, p.k)
	}
	if d < p.k {
		return fmt.Errorf("%w: %d features for %d components", ErrInvalidInput, d, p.k)
	}

	centered := mat.DenseCopyOf(X)
	mean := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, centered)
		mean[j] = stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			centered.Set(i, j, col[i]-mean[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return errors.New("pca: singular value decomposition failed to converge")
	}

	var v mat.Dense
	svd.VTo(&v)
	components := mat.DenseCopyOf(v.Slice(0, d, 0, p.k))
	flipSigns(components)

	values := svd.Values(nil)
	total := 0.0
	for _, s := range values {
		total += s * s
	}
	variance := make([]float64, p.k)
	if total > 0 {
		for i := 0; i < p.k; i++ {
			variance[i] = values[i] * values[i] / total
		}
	}

	p.mean = mean
	p.components = components
	p.variance = variance
	return nil
}

// Transform implements Reducer.
func (p *PCA) Transform(X mat.Matrix) (*mat.Dense, error) {
	if p.components == nil {
		return nil, ErrNotFitted
	}
	n, d, err := validateBatch(X)
	if err != nil {
		return nil, err
	}
	if d != len(p.mean) {
		return nil, fmt.Errorf("%w: got %d features, fitted on %d", ErrDimensionMismatch, d, len(p.mean))
	}

	centered := mat.DenseCopyOf(X)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			centered.Set(i, j, centered.At(i, j)-p.mean[j])
		}
	}

	out := mat.NewDense(n, p.k, nil)
	out.Mul(centered, p.components)
	return out, nil
}

// ExplainedVarianceRatio returns the fraction of the fit batch variance
// captured by each component, or nil before Fit.
func (p *PCA) ExplainedVarianceRatio() []float64 {
	if p.variance == nil {
		return nil
	}
	out := make([]float64, len(p.variance))
	copy(out, p.variance)
	return out
}

func flipSigns(components *mat.Dense) {
	d, k := components.Dims()
	for j := 0; j < k; j++ {
		maxAbs, sign := 0.0, 1.0
		for i := 0; i < d; i++ {
			v := components.At(i, j)
			if math.Abs(v) > maxAbs {
				maxAbs = math.Abs(v)
				sign = math.Copysign(1, v)
			}
		}
		if sign < 0 {
			for i := 0; i < d; i++ {
				components.Set(i, j, -components.At(i, j))
			}
		}
	}
}
