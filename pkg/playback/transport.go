package playback

import (
	"time"

	"github.com/teslashibe/moodbox/pkg/catalog"
)

// DefaultVolume is the starting output level and the level restored by
// unmuting when no other non-zero volume has been set.
const DefaultVolume = 0.7

type outcome int

const (
	outcomeNone outcome = iota
	outcomeEnded
	outcomeError
)

// Transport holds output-level state for the loaded track: volume, mute and
// progress. It drives the sink; the Selector decides what is loaded.
type Transport struct {
	sink Sink

	token      uint64
	playing    bool
	finished   bool
	volume     float64
	lastVolume float64
	muted      bool
	elapsed    time.Duration
	duration   time.Duration
}

func newTransport(sink Sink, volume float64) *Transport {
	volume = clamp01(volume)
	t := &Transport{
		sink:       sink,
		volume:     volume,
		lastVolume: DefaultVolume,
		muted:      volume == 0,
	}
	if volume > 0 {
		t.lastVolume = volume
	}
	sink.SetVolume(volume)
	return t
}

func (t *Transport) load(track catalog.Track) error {
	t.token++
	t.playing = false
	t.finished = false
	t.elapsed = 0
	t.duration = 0
	return t.sink.Load(t.token, track)
}

func (t *Transport) play() error {
	if err := t.sink.Play(); err != nil {
		t.playing = false
		return err
	}
	t.playing = true
	return nil
}

func (t *Transport) pause() error {
	if err := t.sink.Pause(); err != nil {
		return err
	}
	t.playing = false
	return nil
}

func (t *Transport) stop() {
	t.sink.Stop()
	t.token++
	t.playing = false
}

// SetVolume sets the output level, clamped to [0, 1]. Zero mutes; any other
// level unmutes and is remembered for ToggleMute.
func (t *Transport) SetVolume(v float64) {
	v = clamp01(v)
	t.volume = v
	t.muted = v == 0
	if v > 0 {
		t.lastVolume = v
	}
	t.sink.SetVolume(v)
}

// ToggleMute silences output, or restores the last non-zero volume.
func (t *Transport) ToggleMute() {
	if t.muted {
		t.volume = t.lastVolume
		t.muted = false
		t.sink.SetVolume(t.volume)
		return
	}
	t.muted = true
	t.sink.SetVolume(0)
}

// Volume returns the displayed volume level.
func (t *Transport) Volume() float64 { return t.volume }

// Muted reports whether output is muted.
func (t *Transport) Muted() bool { return t.muted }

// Playing reports whether the sink is producing output.
func (t *Transport) Playing() bool { return t.playing }

// Progress returns elapsed/duration in [0, 1]; 0 until the duration is known.
func (t *Transport) Progress() float64 {
	if t.duration <= 0 {
		return 0
	}
	return clamp01(float64(t.elapsed) / float64(t.duration))
}

// Elapsed returns the playback position of the loaded track.
func (t *Transport) Elapsed() time.Duration { return t.elapsed }

// Duration returns the track length and whether it is known.
func (t *Transport) Duration() (time.Duration, bool) {
	return t.duration, t.duration > 0
}

// observe applies a sink event. Events for stale tokens, and anything after
// the track has finished, are dropped so one track ends exactly once.
func (t *Transport) observe(ev SinkEvent) outcome {
	if ev.Token != t.token || t.finished {
		return outcomeNone
	}
	switch ev.Kind {
	case EventMetadata:
		if ev.Duration > 0 {
			t.duration = ev.Duration
		}
	case EventProgress:
		t.elapsed = ev.Elapsed
		if t.duration > 0 && t.elapsed >= t.duration {
			t.finish()
			return outcomeEnded
		}
	case EventEnded:
		t.finish()
		return outcomeEnded
	case EventError:
		t.playing = false
		return outcomeError
	}
	return outcomeNone
}

func (t *Transport) finish() {
	t.finished = true
	t.playing = false
	if t.duration > 0 {
		t.elapsed = t.duration
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
