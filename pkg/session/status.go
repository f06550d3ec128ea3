package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/moodbox/pkg/classifier"
	"github.com/teslashibe/moodbox/pkg/media"
)

// StatusKind names the sampling lifecycle state.
type StatusKind string

const (
	StatusIdle     StatusKind = "idle"
	StatusSampling StatusKind = "sampling"
	StatusFatal    StatusKind = "fatal"
	StatusStopped  StatusKind = "stopped"
)

// Status is the host-facing description of the session. A fatal status is
// produced once per failure and is never retried automatically.
type Status struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message,omitempty"`
	Source  string     `json:"source,omitempty"`
	At      time.Time  `json:"at"`
	Err     error      `json:"-"`
}

func fatalStatus(source string, err error) Status {
	return Status{
		Kind:    StatusFatal,
		Message: describe(err),
		Source:  source,
		At:      time.Now(),
		Err:     err,
	}
}

// describe renders a fatal error for display.
func describe(err error) string {
	switch {
	case errors.Is(err, classifier.ErrInferenceUnavailable):
		return fmt.Sprintf("Emotion detection is unavailable: %v. Sampling has stopped until the session is restarted.", err)
	case errors.Is(err, media.ErrMediaUnavailable):
		return fmt.Sprintf("The camera is unavailable: %v. Restart the session to try again.", err)
	default:
		return fmt.Sprintf("Sampling stopped: %v", err)
	}
}
