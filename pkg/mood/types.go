// Package mood defines the five-category mood vocabulary moodbox operates on,
// the mapping from expression-engine labels into it, and the bounded history
// of accepted emotion events.
package mood

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is one of the closed set of moods that drive track selection.
type Category string

const (
	Happy      Category = "happy"
	Sad        Category = "sad"
	Neutral    Category = "neutral"
	Frustrated Category = "frustrated"
	Vibing     Category = "vibing"
)

// AcceptThreshold is the confidence gate. A score must be strictly greater
// than this to produce an Event.
const AcceptThreshold = 0.5

var allCategories = []Category{Happy, Sad, Neutral, Frustrated, Vibing}

// Categories returns every category in a stable order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Valid reports whether c is part of the vocabulary.
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// ParseCategory parses a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Accept reports whether a winning score passes the confidence gate.
func Accept(score float64) bool {
	return score > AcceptThreshold
}

// Event is an accepted emotion observation. Events are values; nothing
// mutates them after NewEvent returns.
type Event struct {
	ID         string    `json:"id"`
	Category   Category  `json:"category"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`

	// Source names the producer ("camera", "demo", "manual").
	Source string `json:"source,omitempty"`
}

// NewEvent builds an Event stamped with the current monotonic time.
// Confidence must be in (0, 1].
func NewEvent(c Category, confidence float64, source string) (Event, error) {
	if !c.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	if confidence <= 0 || confidence > 1 {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidConfidence, confidence)
	}
	return Event{
		ID:         uuid.NewString(),
		Category:   c,
		Confidence: confidence,
		Timestamp:  time.Now(),
		Source:     source,
	}, nil
}
