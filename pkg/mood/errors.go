package mood

import "errors"

var (
	// ErrUnknownCategory is returned when a name is not one of the five moods.
	ErrUnknownCategory = errors.New("mood: unknown category")

	// ErrInvalidConfidence is returned when a confidence is outside (0, 1].
	ErrInvalidConfidence = errors.New("mood: confidence out of range")
)
