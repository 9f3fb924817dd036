package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrModelLoad is returned when the descriptor or weights cannot be
	// read, parsed, or turned into a runnable model.
	ErrModelLoad = errors.New("inference: model load failed")

	// ErrInference is returned when a forward pass fails or the input
	// tensor is unusable.
	ErrInference = errors.New("inference: prediction failed")

	// ErrUnknownBackend is returned by Load for an unsupported backend name.
	ErrUnknownBackend = errors.New("inference: unknown backend")
)

// LoadError wraps a model loading failure with the artifact involved.
type LoadError struct {
	// Path is the descriptor or weights file that failed.
	Path string

	// Backend is the backend that was loading it.
	Backend Backend

	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("inference [%s]: load: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("inference [%s]: load %s: %v", e.Backend, e.Path, e.Err)
}

// Is reports LoadError as ErrModelLoad.
func (e *LoadError) Is(target error) bool {
	return target == ErrModelLoad
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// PredictError wraps a failed forward pass.
type PredictError struct {
	Backend Backend
	Err     error
}

// Error implements the error interface.
func (e *PredictError) Error() string {
	return fmt.Sprintf("inference [%s]: predict: %v", e.Backend, e.Err)
}

// Is reports PredictError as ErrInference.
func (e *PredictError) Is(target error) bool {
	return target == ErrInference
}

// Unwrap returns the underlying error.
func (e *PredictError) Unwrap() error {
	return e.Err
}

func loadErr(backend Backend, path string, err error) error {
	return &LoadError{Path: path, Backend: backend, Err: err}
}

func predictErr(backend Backend, err error) error {
	return &PredictError{Backend: backend, Err: err}
}
