// Package playback chooses tracks for the current mood and drives an audio
// sink through load, play, pause and end-of-track.
//
// A Selector is not safe for concurrent use. It is owned by one event loop
// which feeds it mood changes, sink events and user commands in order.
package playback

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/mood"
)

var (
	// ErrPlaybackRejected is returned when the sink refuses to start. The
	// selector stays Loaded and does not retry.
	ErrPlaybackRejected = errors.New("playback: rejected")

	// ErrNothingLoaded is returned by transport commands before any track
	// has been selected.
	ErrNothingLoaded = errors.New("playback: nothing loaded")
)

// State is the selector's position in the playback state machine.
type State int

const (
	Idle State = iota
	Selecting
	Loaded
	Playing
	Paused
	Ended
)

var stateNames = [...]string{"idle", "selecting", "loaded", "playing", "paused", "ended"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a read-only copy of the playback state.
type Snapshot struct {
	Track         *catalog.Track `json:"track,omitempty"`
	Category      mood.Category  `json:"category,omitempty"`
	State         State          `json:"state"`
	IsPlaying     bool           `json:"is_playing"`
	Volume        float64        `json:"volume"`
	IsMuted       bool           `json:"is_muted"`
	ProgressRatio float64        `json:"progress"`
	Elapsed       time.Duration  `json:"-"`
	Duration      time.Duration  `json:"-"`
	DurationKnown bool           `json:"duration_known"`

	ElapsedSeconds  float64 `json:"elapsed"`
	DurationSeconds float64 `json:"duration"`
}

// ElapsedText formats elapsed time as m:ss.
func (s Snapshot) ElapsedText() string {
	return FormatTime(s.Elapsed)
}

// DurationText formats the duration as m:ss, "0:00" when unknown.
func (s Snapshot) DurationText() string {
	if !s.DurationKnown {
		return FormatTime(0)
	}
	return FormatTime(s.Duration)
}

// FormatTime renders d as minutes and zero-padded seconds.
func FormatTime(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
