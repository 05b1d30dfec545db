package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stages.
var (
	ErrNotFound              = errors.New("object not found")
	ErrOutsideNamespace      = errors.New("key outside expected namespace")
	ErrMalformedNotification = errors.New("malformed notification")
	ErrUnsupportedFormat     = errors.New("unsupported document format")
	ErrEmptyText             = errors.New("empty text")
	ErrEmptyQuestion         = errors.New("question is required")
	ErrDimensionMismatch     = errors.New("vector dimension mismatch")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// DimensionError reports which dimensions disagreed. It unwraps to
// ErrDimensionMismatch.
type DimensionError struct {
	Want, Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrDimensionMismatch, e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// CheckDimension returns a *DimensionError when want is set and differs from
// the vector length. A zero want accepts any non-empty vector.
func CheckDimension(want int, vec []float32) error {
	if len(vec) == 0 {
		return &DimensionError{Want: want, Got: 0}
	}
	if want > 0 && len(vec) != want {
		return &DimensionError{Want: want, Got: len(vec)}
	}
	return nil
}
