package projector

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFitted is returned when coordinates are requested before Fit.
	ErrNotFitted = errors.New("projector not fitted")
	// ErrInvalidInput is returned for empty, ragged or non-finite batches.
	ErrInvalidInput = errors.New("invalid embedding batch")
	// ErrInsufficientSamples is returned when a batch has fewer rows than
	// the number of requested output components.
	ErrInsufficientSamples = errors.New("insufficient samples")
	// ErrDimensionMismatch is returned when a batch passed to Transform does
	// not have the feature dimensionality seen at fit time. It wraps
	// ErrInvalidInput.
	ErrDimensionMismatch = fmt.Errorf("%w: feature dimension mismatch", ErrInvalidInput)
)
