package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/teslashibe/moodbox/internal/log"
	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/mood"
)

var errUnknownSinkFailure = errors.New("unknown failure")

// DefaultMaxRedraws caps the extra draws spent avoiding a repeat.
const DefaultMaxRedraws = 5

// Rand is the randomness the selector draws tracks with.
type Rand interface {
	IntN(n int) int
}

// Config tunes a Selector.
type Config struct {
	// MaxRedraws is the number of extra draws allowed when the first pick
	// repeats the current title. Zero uses DefaultMaxRedraws; negative
	// disables redraws.
	MaxRedraws int

	// Volume is the starting output level; zero starts muted. Nil uses
	// DefaultVolume.
	Volume *float64

	// Rand overrides the random source.
	Rand Rand
}

// Selector is the mood-driven playback state machine.
//
//	Idle → Selecting → Loaded → Playing ⇄ Paused
//	Playing → Ended → Selecting (same category)
//	any loaded state → Selecting on a new category or Skip
type Selector struct {
	catalog    *catalog.Catalog
	transport  *Transport
	rng        Rand
	maxRedraws int
	logger     *slog.Logger

	state    State
	category mood.Category
	current  *catalog.Track

	// OnTrackChange is called whenever a new track is loaded.
	OnTrackChange func(catalog.Track)

	// OnState is called after every state change with a fresh snapshot.
	OnState func(Snapshot)

	// OnError receives non-fatal playback errors such as rejections.
	OnError func(error)
}

// NewSelector creates a selector over cat driving sink.
func NewSelector(cat *catalog.Catalog, sink Sink, cfg Config) *Selector {
	if cfg.MaxRedraws == 0 {
		cfg.MaxRedraws = DefaultMaxRedraws
	}
	if cfg.MaxRedraws < 0 {
		cfg.MaxRedraws = 0
	}
	volume := DefaultVolume
	if cfg.Volume != nil {
		volume = *cfg.Volume
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{
		catalog:    cat,
		transport:  newTransport(sink, volume),
		rng:        cfg.Rand,
		maxRedraws: cfg.MaxRedraws,
		logger:     log.With("component", "playback"),
	}
}

// HandleEmotion reacts to an accepted mood. A category equal to that of the
// loaded track is a no-op; anything else interrupts and reselects.
func (s *Selector) HandleEmotion(cat mood.Category) error {
	if !cat.Valid() {
		return fmt.Errorf("%w: %q", mood.ErrUnknownCategory, cat)
	}
	if s.current != nil && s.current.Category == cat {
		return nil
	}
	s.logger.Info("mood changed", "from", s.category, "to", cat)
	s.category = cat
	return s.advance(true)
}

// HandleEnded auto-advances to another track from the same category.
func (s *Selector) HandleEnded() error {
	if s.current == nil {
		return nil
	}
	s.state = Ended
	s.changed()
	return s.advance(true)
}

// HandleSinkEvent applies an asynchronous sink notification.
func (s *Selector) HandleSinkEvent(ev SinkEvent) error {
	switch s.transport.observe(ev) {
	case outcomeEnded:
		return s.HandleEnded()
	case outcomeError:
		if s.state == Playing {
			s.state = Loaded
		}
		err := ev.Err
		if err == nil {
			err = errUnknownSinkFailure
		}
		s.report(fmt.Errorf("sink: %w", err))
	}
	s.changed()
	return nil
}

// Play starts or resumes the loaded track.
func (s *Selector) Play() error {
	switch s.state {
	case Playing:
		return nil
	case Loaded, Paused:
		return s.play()
	default:
		return ErrNothingLoaded
	}
}

// Pause pauses a playing track.
func (s *Selector) Pause() error {
	if s.state != Playing {
		return nil
	}
	if err := s.transport.pause(); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	s.state = Paused
	s.changed()
	return nil
}

// Toggle switches between playing and paused.
func (s *Selector) Toggle() error {
	if s.state == Playing {
		return s.Pause()
	}
	return s.Play()
}

// Skip picks another track from the current category. Output continues
// only if it was playing.
func (s *Selector) Skip() error {
	if s.current == nil {
		return nil
	}
	return s.advance(s.state == Playing)
}

// SetVolume sets the output level.
func (s *Selector) SetVolume(v float64) {
	s.transport.SetVolume(v)
	s.changed()
}

// ToggleMute mutes or restores output.
func (s *Selector) ToggleMute() {
	s.transport.ToggleMute()
	s.changed()
}

// Stop halts output and returns to Idle, forgetting the category.
func (s *Selector) Stop() {
	s.transport.stop()
	s.state = Idle
	s.category = ""
	s.current = nil
	s.changed()
}

// State returns the current state.
func (s *Selector) State() State { return s.state }

// Category returns the category tracks are drawn from.
func (s *Selector) Category() mood.Category { return s.category }

// Current returns the loaded track, if any.
func (s *Selector) Current() (catalog.Track, bool) {
	if s.current == nil {
		return catalog.Track{}, false
	}
	return *s.current, true
}

// Snapshot copies the playback state.
func (s *Selector) Snapshot() Snapshot {
	snap := Snapshot{
		Category:      s.category,
		State:         s.state,
		IsPlaying:     s.transport.Playing(),
		Volume:        s.transport.Volume(),
		IsMuted:       s.transport.Muted(),
		ProgressRatio: s.transport.Progress(),
		Elapsed:       s.transport.Elapsed(),
	}
	snap.Duration, snap.DurationKnown = s.transport.Duration()
	snap.ElapsedSeconds = snap.Elapsed.Seconds()
	snap.DurationSeconds = snap.Duration.Seconds()
	if s.current != nil {
		t := *s.current
		snap.Track = &t
	}
	return snap
}

// advance selects and loads a track from the current category, then
// optionally starts it.
func (s *Selector) advance(autoplay bool) error {
	s.state = Selecting
	track := s.pick(s.category)

	if err := s.transport.load(track); err != nil {
		s.state = Loaded
		s.current = &track
		err = fmt.Errorf("%w: load %q: %v", ErrPlaybackRejected, track.Title, err)
		s.report(err)
		s.changed()
		return err
	}
	s.current = &track
	s.state = Loaded
	s.logger.Info("track loaded", "title", track.Title, "artist", track.Artist, "category", track.Category)
	if s.OnTrackChange != nil {
		s.OnTrackChange(track)
	}

	if !autoplay {
		s.changed()
		return nil
	}
	return s.play()
}

func (s *Selector) play() error {
	if err := s.transport.play(); err != nil {
		s.state = Loaded
		err = fmt.Errorf("%w: %v", ErrPlaybackRejected, err)
		s.report(err)
		s.changed()
		return err
	}
	s.state = Playing
	s.changed()
	return nil
}

// pick draws uniformly from the category. If the draw repeats the current
// title and there is an alternative, it redraws up to maxRedraws times.
func (s *Selector) pick(cat mood.Category) catalog.Track {
	tracks := s.catalog.TracksFor(cat)
	choice := tracks[s.rng.IntN(len(tracks))]
	if s.current == nil || len(tracks) < 2 {
		return choice
	}
	for i := 0; i < s.maxRedraws && choice.Title == s.current.Title; i++ {
		choice = tracks[s.rng.IntN(len(tracks))]
	}
	return choice
}

func (s *Selector) report(err error) {
	s.logger.Warn("playback error", "error", err)
	if s.OnError != nil {
		s.OnError(err)
	}
}

func (s *Selector) changed() {
	if s.OnState != nil {
		s.OnState(s.Snapshot())
	}
}
