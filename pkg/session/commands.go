package session

import (
	"time"

	"github.com/teslashibe/moodbox/pkg/mood"
	"github.com/teslashibe/moodbox/pkg/playback"
	"github.com/teslashibe/moodbox/pkg/sampler"
)

// StartSampling stops any running source, releasing its media, then starts
// src. name labels the source in status reports.
func (s *Session) StartSampling(src sampler.Source, name string) error {
	select {
	case <-s.closing:
		return ErrClosed
	case <-s.started:
	default:
		return ErrNotStarted
	}

	h := s.runner.Start(s.ctx, src, s.emit)
	if err := s.do(func() {
		s.setStatus(Status{Kind: StatusSampling, Source: name, At: time.Now()})
	}); err != nil {
		h.Stop()
		return err
	}
	s.logger.Info("sampling started", "source", name)

	go func() {
		err := h.Wait()
		select {
		case s.exits <- samplerExit{handle: h, source: name, err: err}:
		case <-s.done:
		}
	}()
	return nil
}

// StopSampling stops the running source, if any.
func (s *Session) StopSampling() error {
	s.runner.Stop()
	return s.do(func() {
		s.setStatus(Status{Kind: StatusStopped, At: time.Now()})
	})
}

// InjectEmotion feeds a manual mood. When the demo source is running it
// chooses the confidence; otherwise the event is taken at full confidence.
func (s *Session) InjectEmotion(cat mood.Category) error {
	if !cat.Valid() {
		return mood.ErrUnknownCategory
	}
	select {
	case <-s.started:
	default:
		return ErrNotStarted
	}
	if h := s.runner.Current(); h != nil {
		if demo, ok := h.Source().(*sampler.Demo); ok {
			return demo.Manual(cat)
		}
	}
	ev, err := mood.NewEvent(cat, 1.0, "manual")
	if err != nil {
		return err
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.closing:
		return ErrClosed
	}
}

// Play starts or resumes playback.
func (s *Session) Play() error {
	return s.playbackCmd((*playback.Selector).Play)
}

// Pause pauses playback.
func (s *Session) Pause() error {
	return s.playbackCmd((*playback.Selector).Pause)
}

// Toggle flips between play and pause.
func (s *Session) Toggle() error {
	return s.playbackCmd((*playback.Selector).Toggle)
}

// Skip loads another track from the current mood.
func (s *Session) Skip() error {
	return s.playbackCmd((*playback.Selector).Skip)
}

// SetVolume sets the output level in [0, 1].
func (s *Session) SetVolume(v float64) error {
	return s.do(func() { s.selector.SetVolume(v) })
}

// ToggleMute mutes or restores output.
func (s *Session) ToggleMute() error {
	return s.do(s.selector.ToggleMute)
}

func (s *Session) playbackCmd(fn func(*playback.Selector) error) error {
	var err error
	if derr := s.do(func() { err = fn(s.selector) }); derr != nil {
		return derr
	}
	return err
}

// Snapshot returns the playback state.
func (s *Session) Snapshot() (playback.Snapshot, error) {
	var snap playback.Snapshot
	err := s.do(func() { snap = s.selector.Snapshot() })
	return snap, err
}

// History returns recorded events, oldest first.
func (s *Session) History() ([]mood.Event, error) {
	var events []mood.Event
	err := s.do(func() { events = s.history.Recent() })
	return events, err
}

// Status returns the sampling status.
func (s *Session) Status() (Status, error) {
	var st Status
	err := s.do(func() { st = s.status })
	return st, err
}

// Overview gathers everything a status display needs in one call.
func (s *Session) Overview() (Overview, error) {
	var ov Overview
	err := s.do(func() {
		ov = Overview{
			SessionID: s.id,
			Status:    s.status,
			Playback:  s.selector.Snapshot(),
		}
		if ev, ok := s.history.Latest(); ok {
			ov.Latest = &ev
		}
		if cat, ok := s.history.Dominant(); ok {
			ov.Dominant = cat
		}
	})
	if err != nil {
		return ov, err
	}
	if h := s.runner.Current(); h != nil {
		if smp, ok := h.Source().(*sampler.Sampler); ok {
			st := smp.Stats()
			ov.Sampler = &st
		}
	}
	return ov, nil
}
