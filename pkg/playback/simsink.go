package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/teslashibe/moodbox/pkg/catalog"
)

// SimConfig configures a SimSink.
type SimConfig struct {
	// Duration is reported as metadata after load. Zero never reports a
	// duration, so the track only ends on Stop.
	Duration time.Duration

	// Tick is the progress reporting period.
	Tick time.Duration

	// Speed scales simulated time; 2 plays twice as fast.
	Speed float64

	// Reject, when set, decides whether Play refuses a track.
	Reject func(catalog.Track) bool
}

// SimSink is a clock-driven sink with no audio output. It backs the demo
// command and headless runs.
type SimSink struct {
	cfg    SimConfig
	events chan SinkEvent
	done   chan struct{}

	mu      sync.Mutex
	token   uint64
	track   *catalog.Track
	elapsed time.Duration
	volume  float64
	stop    chan struct{}
	closed  bool
}

// NewSimSink creates a simulated sink.
func NewSimSink(cfg SimConfig) *SimSink {
	if cfg.Tick <= 0 {
		cfg.Tick = 250 * time.Millisecond
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	return &SimSink{
		cfg:    cfg,
		events: make(chan SinkEvent, 16),
		done:   make(chan struct{}),
	}
}

// Load implements Sink.
func (s *SimSink) Load(token uint64, track catalog.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	s.haltLocked()
	s.token = token
	s.track = &track
	s.elapsed = 0

	if s.cfg.Duration > 0 {
		go s.send(SinkEvent{Token: token, Kind: EventMetadata, Duration: s.cfg.Duration}, nil)
	}
	return nil
}

// Play implements Sink.
func (s *SimSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	if s.track == nil {
		return ErrNothingLoaded
	}
	if s.cfg.Reject != nil && s.cfg.Reject(*s.track) {
		return ErrAutoplayBlocked
	}
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	go s.run(s.token, s.stop)
	return nil
}

// Pause implements Sink.
func (s *SimSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltLocked()
	return nil
}

// SetVolume implements Sink.
func (s *SimSink) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

// Volume returns the last level set.
func (s *SimSink) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Stop implements Sink.
func (s *SimSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltLocked()
	s.track = nil
	s.token = 0
}

// Events implements Sink.
func (s *SimSink) Events() <-chan SinkEvent {
	return s.events
}

// Close implements Sink.
func (s *SimSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.haltLocked()
	close(s.done)
	return nil
}

var errSinkClosed = errors.New("playback: sink closed")

func (s *SimSink) haltLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *SimSink) run(token uint64, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	step := time.Duration(float64(s.cfg.Tick) * s.cfg.Speed)

	for {
		select {
		case <-stop:
			return
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.token != token {
			s.mu.Unlock()
			return
		}
		s.elapsed += step
		elapsed := s.elapsed
		s.mu.Unlock()

		if !s.send(SinkEvent{Token: token, Kind: EventProgress, Elapsed: elapsed}, stop) {
			return
		}
		if s.cfg.Duration > 0 && elapsed >= s.cfg.Duration {
			s.mu.Lock()
			if s.stop == stop {
				s.stop = nil
			}
			s.mu.Unlock()
			s.send(SinkEvent{Token: token, Kind: EventEnded}, nil)
			return
		}
	}
}

// send delivers ev unless the sink closes or stop fires first.
func (s *SimSink) send(ev SinkEvent, stop chan struct{}) bool {
	select {
	case s.events <- ev:
		return true
	case <-stop:
		return false
	case <-s.done:
		return false
	}
}
