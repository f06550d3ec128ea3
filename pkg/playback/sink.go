package playback

import (
	"errors"
	"time"

	"github.com/teslashibe/moodbox/pkg/catalog"
)

// ErrAutoplayBlocked is what a sink returns from Play when the output
// refuses to start.
var ErrAutoplayBlocked = errors.New("playback: output refused to start")

// EventKind classifies sink notifications.
type EventKind int

const (
	EventMetadata EventKind = iota + 1
	EventProgress
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMetadata:
		return "metadata"
	case EventProgress:
		return "progress"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// SinkEvent is an asynchronous notification from a sink. Token identifies
// the Load it belongs to; events for older loads are ignored.
type SinkEvent struct {
	Token    uint64
	Kind     EventKind
	Duration time.Duration // EventMetadata
	Elapsed  time.Duration // EventProgress
	Err      error         // EventError
}

// Sink is the audio output. Calls return quickly; progress, duration and
// end-of-track arrive later on Events.
type Sink interface {
	// Load replaces whatever is loaded with track. Events for the new
	// track carry token.
	Load(token uint64, track catalog.Track) error

	// Play starts or resumes output. An error means the sink refused.
	Play() error

	Pause() error

	// SetVolume sets output gain in [0, 1].
	SetVolume(v float64)

	// Stop halts output and unloads.
	Stop()

	Events() <-chan SinkEvent

	Close() error
}
