package classifier

import (
	"errors"
	"fmt"
)

var (
	// ErrInferenceUnavailable is returned when the engine cannot be
	// initialised (missing model assets, unreachable service). It is fatal to
	// the sampling loop.
	ErrInferenceUnavailable = errors.New("classifier: inference unavailable")

	// ErrEmptyFrame is returned for frames that decode to nothing.
	ErrEmptyFrame = errors.New("classifier: empty frame")

	// ErrClosed is returned when using a classifier after Close.
	ErrClosed = errors.New("classifier: closed")
)

// EngineError wraps an error with the engine that produced it.
type EngineError struct {
	Engine string
	Err    error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("classifier [%s]: %v", e.Engine, e.Err)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with engine context.
func WrapError(engine string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Engine: engine, Err: err}
}

// unavailable marks err as fatal for the given engine.
func unavailable(engine string, err error) error {
	return WrapError(engine, fmt.Errorf("%w: %v", ErrInferenceUnavailable, err))
}
