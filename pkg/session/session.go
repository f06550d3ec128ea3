// Package session runs one playback session: a single event loop that owns
// the emotion history and the playback selector, fed by a sampling source,
// the audio sink and user commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/teslashibe/moodbox/internal/log"
	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/mood"
	"github.com/teslashibe/moodbox/pkg/playback"
	"github.com/teslashibe/moodbox/pkg/sampler"
)

var (
	// ErrLocked is returned by Start when another session holds the lock.
	ErrLocked = errors.New("session: another session is running")

	// ErrClosed is returned by commands after Close.
	ErrClosed = errors.New("session: closed")

	// ErrNotStarted is returned by commands before Start.
	ErrNotStarted = errors.New("session: not started")
)

const lockFile = "session.lock"

// Config configures a Session.
type Config struct {
	// StateDir holds the session lock. Empty disables locking.
	StateDir string

	Catalog  *catalog.Catalog
	Sink     playback.Sink
	Playback playback.Config

	// HistoryCapacity defaults to mood.HistoryCapacity.
	HistoryCapacity int
}

// Observers receive session notifications on the event loop goroutine.
// They must return quickly.
type Observers struct {
	OnEmotionDetected func(ev mood.Event)
	OnTrackChange     func(track catalog.Track)
	OnState           func(snap playback.Snapshot)
	OnStatus          func(st Status)
	OnError           func(err error)
}

// Overview is a point-in-time summary for status displays.
type Overview struct {
	SessionID string            `json:"session_id"`
	Status    Status            `json:"status"`
	Playback  playback.Snapshot `json:"playback"`
	Latest    *mood.Event       `json:"latest,omitempty"`
	Dominant  mood.Category     `json:"dominant,omitempty"`
	Sampler   *sampler.Stats    `json:"sampler,omitempty"`
}

type command struct {
	fn   func()
	done chan struct{}
}

type samplerExit struct {
	handle *sampler.Handle
	source string
	err    error
}

// Session is a single playback session.
type Session struct {
	id     string
	cfg    Config
	obs    Observers
	logger *slog.Logger

	lock   *flock.Flock
	runner sampler.Runner

	// owned by the loop goroutine
	history  *mood.History
	selector *playback.Selector
	status   Status

	events   chan mood.Event
	commands chan command
	exits    chan samplerExit

	startOnce sync.Once
	closeOnce sync.Once
	started   chan struct{}
	closing   chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	ctx       context.Context
}

// New creates a session. Observers are fixed at construction.
func New(cfg Config, obs Observers) (*Session, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("session: catalog required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("session: sink required")
	}
	capacity := cfg.HistoryCapacity
	if capacity <= 0 {
		capacity = mood.HistoryCapacity
	}

	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		obs:      obs,
		history:  mood.NewHistoryWithCapacity(capacity),
		status:   Status{Kind: StatusIdle, At: time.Now()},
		events:   make(chan mood.Event, 64),
		commands: make(chan command),
		exits:    make(chan samplerExit, 4),
		started:  make(chan struct{}),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.logger = log.With("component", "session", "session", s.id[:8])

	s.selector = playback.NewSelector(cfg.Catalog, cfg.Sink, cfg.Playback)
	s.selector.OnTrackChange = obs.OnTrackChange
	s.selector.OnState = obs.OnState
	s.selector.OnError = obs.OnError

	if cfg.StateDir != "" {
		s.lock = flock.New(filepath.Join(cfg.StateDir, lockFile))
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start acquires the session lock and runs the event loop until ctx is
// cancelled or Close is called.
func (s *Session) Start(ctx context.Context) error {
	if s.lock != nil {
		if err := os.MkdirAll(s.cfg.StateDir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
		ok, err := s.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w (lock %s)", ErrLocked, s.lock.Path())
		}
	}

	started := false
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)
		close(s.started)
		go s.loop()
		started = true
	})
	if !started {
		return errors.New("session: already started")
	}
	s.logger.Info("session started")
	return nil
}

// Close stops sampling, ends the loop, closes the sink and releases the lock.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		s.runner.Stop()

		select {
		case <-s.started:
			s.cancel()
			<-s.done
		default:
		}

		err = s.cfg.Sink.Close()
		if s.lock != nil {
			if uerr := s.lock.Unlock(); uerr != nil {
				s.logger.Warn("failed to release session lock", "error", uerr)
			}
		}
		s.logger.Info("session closed")
	})
	return err
}

// Done is closed when the event loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) loop() {
	defer close(s.done)
	defer s.selector.Stop()

	sinkEvents := s.cfg.Sink.Events()
	for {
		select {
		case <-s.ctx.Done():
			return

		case ev := <-s.events:
			s.handleEmotions(s.coalesce(ev))

		case ev := <-sinkEvents:
			if err := s.selector.HandleSinkEvent(ev); err != nil {
				s.logger.Debug("sink event", "error", err)
			}

		case cmd := <-s.commands:
			cmd.fn()
			close(cmd.done)

		case exit := <-s.exits:
			s.handleSamplerExit(exit)
		}
	}
}

// coalesce collects ev plus any events already queued behind it.
func (s *Session) coalesce(ev mood.Event) []mood.Event {
	batch := []mood.Event{ev}
	for {
		select {
		case next := <-s.events:
			batch = append(batch, next)
		default:
			return batch
		}
	}
}

// handleEmotions records every event and hands only the latest category to
// the selector.
func (s *Session) handleEmotions(batch []mood.Event) {
	for _, ev := range batch {
		s.history.Record(ev)
		if s.obs.OnEmotionDetected != nil {
			s.obs.OnEmotionDetected(ev)
		}
	}
	if len(batch) > 1 {
		s.logger.Debug("coalesced emotion events", "count", len(batch))
	}

	last := batch[len(batch)-1]
	if err := s.selector.HandleEmotion(last.Category); err != nil {
		s.logger.Debug("emotion not applied", "category", last.Category, "error", err)
	}
}

func (s *Session) handleSamplerExit(exit samplerExit) {
	if s.runner.Current() != exit.handle {
		return
	}
	if exit.err == nil {
		s.setStatus(Status{Kind: StatusStopped, Source: exit.source, At: time.Now()})
		return
	}
	s.logger.Error("sampling failed", "source", exit.source, "error", exit.err)
	s.setStatus(fatalStatus(exit.source, exit.err))
}

func (s *Session) setStatus(st Status) {
	s.status = st
	if s.obs.OnStatus != nil {
		s.obs.OnStatus(st)
	}
}

// emit is handed to sampling sources.
func (s *Session) emit(ev mood.Event) {
	select {
	case s.events <- ev:
	case <-s.closing:
	case <-s.done:
	}
}

// do runs fn on the event loop and waits for it.
func (s *Session) do(fn func()) error {
	select {
	case <-s.started:
	default:
		return ErrNotStarted
	}
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrClosed
	}
	<-cmd.done
	return nil
}
