package projector

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FromRows converts a batch of float32 embeddings (rows = samples) into a
// dense matrix. All rows must have the same, non-zero length.
func FromRows(rows [][]float32) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length embeddings", ErrInvalidInput)
	}

	data := make([]float64, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrInvalidInput, i, len(row), dim)
		}
		for j, v := range row {
			data[i*dim+j] = float64(v)
		}
	}
	return mat.NewDense(len(rows), dim, data), nil
}

// FromRows64 is FromRows for float64 embeddings.
func FromRows64(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length embeddings", ErrInvalidInput)
	}

	data := make([]float64, 0, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrInvalidInput, i, len(row), dim)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), dim, data), nil
}

// validateBatch rejects nil matrices and non-finite values.
func validateBatch(x mat.Matrix) (rows, cols int, err error) {
	if x == nil {
		return 0, 0, fmt.Errorf("%w: nil batch", ErrInvalidInput)
	}
	rows, cols = x.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := x.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, fmt.Errorf("%w: non-finite value at (%d, %d)", ErrInvalidInput, i, j)
			}
		}
	}
	return rows, cols, nil
}
