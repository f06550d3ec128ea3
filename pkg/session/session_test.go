package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/classifier"
	"github.com/teslashibe/moodbox/pkg/media"
	"github.com/teslashibe/moodbox/pkg/mood"
	"github.com/teslashibe/moodbox/pkg/playback"
	"github.com/teslashibe/moodbox/pkg/sampler"
)

type funcSource func(ctx context.Context, emit func(mood.Event)) error

func (f funcSource) Run(ctx context.Context, emit func(mood.Event)) error { return f(ctx, emit) }

// blockingSource runs until cancelled and records Close.
type blockingSource struct {
	closed chan struct{}
	once   sync.Once
}

func newBlockingSource() *blockingSource {
	return &blockingSource{closed: make(chan struct{})}
}

func (b *blockingSource) Run(ctx context.Context, emit func(mood.Event)) error {
	<-ctx.Done()
	return nil
}

func (b *blockingSource) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func mustEvent(t *testing.T, c mood.Category, conf float64) mood.Event {
	t.Helper()
	ev, err := mood.NewEvent(c, conf, "test")
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func newTestSession(t *testing.T, obs Observers) *Session {
	t.Helper()
	s, err := New(Config{
		StateDir: t.TempDir(),
		Catalog:  catalog.Default(),
		Sink:     playback.NewSimSink(playback.SimConfig{}),
	}, obs)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func startSession(t *testing.T, obs Observers) *Session {
	t.Helper()
	s := newTestSession(t, obs)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNew_RequiresCatalogAndSink(t *testing.T) {
	if _, err := New(Config{Sink: playback.NewSimSink(playback.SimConfig{})}, Observers{}); err == nil {
		t.Error("expected error without catalog")
	}
	if _, err := New(Config{Catalog: catalog.Default()}, Observers{}); err == nil {
		t.Error("expected error without sink")
	}
}

func TestSession_SingleInstanceLock(t *testing.T) {
	dir := t.TempDir()
	mk := func() *Session {
		s, err := New(Config{StateDir: dir, Catalog: catalog.Default(), Sink: playback.NewSimSink(playback.SimConfig{})}, Observers{})
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	first := mk()
	if err := first.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := mk()
	if err := second.Start(context.Background()); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Start() = %v, want ErrLocked", err)
	}

	first.Close()
	third := mk()
	if err := third.Start(context.Background()); err != nil {
		t.Fatalf("Start after release = %v", err)
	}
	third.Close()
}

func TestSession_CommandsRequireRunningLoop(t *testing.T) {
	s := newTestSession(t, Observers{})
	if err := s.Play(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Play() before start = %v", err)
	}
	if err := s.InjectEmotion(mood.Happy); !errors.Is(err, ErrNotStarted) {
		t.Errorf("InjectEmotion() before start = %v", err)
	}

	s.Start(context.Background())
	s.Close()
	if _, err := s.Snapshot(); !errors.Is(err, ErrClosed) {
		t.Errorf("Snapshot() after close = %v", err)
	}
	if err := s.StartSampling(newBlockingSource(), "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("StartSampling() after close = %v", err)
	}
}

func TestSession_EmotionDrivesPlayback(t *testing.T) {
	var (
		mu       sync.Mutex
		detected []mood.Event
		tracks   []catalog.Track
	)
	s := startSession(t, Observers{
		OnEmotionDetected: func(ev mood.Event) {
			mu.Lock()
			detected = append(detected, ev)
			mu.Unlock()
		},
		OnTrackChange: func(tr catalog.Track) {
			mu.Lock()
			tracks = append(tracks, tr)
			mu.Unlock()
		},
	})

	happy := mustEvent(t, mood.Happy, 0.9)
	src := funcSource(func(ctx context.Context, emit func(mood.Event)) error {
		emit(happy)
		<-ctx.Done()
		return nil
	})
	if err := s.StartSampling(src, "test"); err != nil {
		t.Fatal(err)
	}

	eventually(t, "playback of a happy track", func() bool {
		snap, _ := s.Snapshot()
		return snap.Track != nil && snap.Track.Category == mood.Happy && snap.State == playback.Playing
	})

	mu.Lock()
	if len(detected) != 1 || detected[0].ID != happy.ID {
		t.Errorf("detected = %+v", detected)
	}
	if len(tracks) != 1 {
		t.Errorf("track changes = %d", len(tracks))
	}
	mu.Unlock()

	hist, _ := s.History()
	if len(hist) != 1 || hist[0].Category != mood.Happy {
		t.Errorf("history = %+v", hist)
	}
	st, _ := s.Status()
	if st.Kind != StatusSampling || st.Source != "test" {
		t.Errorf("status = %+v", st)
	}
}

func TestSession_CoalescesQueuedEmotions(t *testing.T) {
	var changes int
	s := newTestSession(t, Observers{OnTrackChange: func(catalog.Track) { changes++ }})
	defer s.Close()

	s.events <- mustEvent(t, mood.Happy, 0.9)
	s.events <- mustEvent(t, mood.Sad, 0.8)
	s.events <- mustEvent(t, mood.Vibing, 0.7)

	s.handleEmotions(s.coalesce(<-s.events))

	if got := s.history.Len(); got != 3 {
		t.Errorf("history len = %d, want 3", got)
	}
	recent := s.history.Recent()
	for i, want := range []mood.Category{mood.Happy, mood.Sad, mood.Vibing} {
		if recent[i].Category != want {
			t.Errorf("history[%d] = %s, want %s", i, recent[i].Category, want)
		}
	}
	if changes != 1 {
		t.Errorf("selector saw %d track changes, want 1 (last event wins)", changes)
	}
	if s.selector.Category() != mood.Vibing {
		t.Errorf("category = %s, want vibing", s.selector.Category())
	}
}

func TestSession_FatalStatusReportedOnce(t *testing.T) {
	statuses := make(chan Status, 8)
	s := startSession(t, Observers{OnStatus: func(st Status) { statuses <- st }})

	src := sampler.New(media.NewStatic([]byte("f")),
		classifier.WithError(fmt.Errorf("model missing: %w", classifier.ErrInferenceUnavailable)),
		sampler.Config{Interval: 2 * time.Millisecond})
	if err := s.StartSampling(src, "camera"); err != nil {
		t.Fatal(err)
	}

	var fatal []Status
	timeout := time.After(200 * time.Millisecond)
collect:
	for {
		select {
		case st := <-statuses:
			if st.Kind == StatusFatal {
				fatal = append(fatal, st)
			}
		case <-timeout:
			break collect
		}
	}

	if len(fatal) != 1 {
		t.Fatalf("fatal statuses = %d, want 1", len(fatal))
	}
	if !errors.Is(fatal[0].Err, classifier.ErrInferenceUnavailable) {
		t.Errorf("fatal err = %v", fatal[0].Err)
	}
	if !strings.Contains(fatal[0].Message, "unavailable") {
		t.Errorf("message = %q", fatal[0].Message)
	}
	st, _ := s.Status()
	if st.Kind != StatusFatal {
		t.Errorf("Status() = %+v", st)
	}
}

func TestSession_StartSamplingReleasesPrevious(t *testing.T) {
	s := startSession(t, Observers{})

	first := newBlockingSource()
	if err := s.StartSampling(first, "first"); err != nil {
		t.Fatal(err)
	}
	second := newBlockingSource()
	if err := s.StartSampling(second, "second"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-first.closed:
	default:
		t.Fatal("first source not released before second started")
	}

	// the superseded source's exit must not overwrite the new status
	time.Sleep(10 * time.Millisecond)
	st, _ := s.Status()
	if st.Kind != StatusSampling || st.Source != "second" {
		t.Errorf("status = %+v", st)
	}

	s.Close()
	<-second.closed
}

func TestSession_InjectEmotion(t *testing.T) {
	s := startSession(t, Observers{})

	if err := s.InjectEmotion("angry"); !errors.Is(err, mood.ErrUnknownCategory) {
		t.Errorf("InjectEmotion(angry) = %v", err)
	}
	if err := s.InjectEmotion(mood.Sad); err != nil {
		t.Fatal(err)
	}
	eventually(t, "manual event", func() bool {
		h, _ := s.History()
		return len(h) == 1 && h[0].Source == "manual" && h[0].Confidence == 1.0
	})
}

func TestSession_InjectEmotionThroughDemo(t *testing.T) {
	s := startSession(t, Observers{})
	demo := sampler.NewDemo(sampler.DemoConfig{Interval: time.Hour, Seed: 3})
	if err := s.StartSampling(demo, "demo"); err != nil {
		t.Fatal(err)
	}

	eventually(t, "demo accepting manual input", func() bool {
		return s.InjectEmotion(mood.Frustrated) == nil
	})
	eventually(t, "demo event", func() bool {
		snap, _ := s.Snapshot()
		return snap.Category == mood.Frustrated
	})
	h, _ := s.History()
	if h[0].Confidence < 0.7 || h[0].Confidence >= 1 {
		t.Errorf("confidence = %v, want [0.7, 1)", h[0].Confidence)
	}
}

func TestSession_TransportCommands(t *testing.T) {
	s := startSession(t, Observers{})

	if err := s.Play(); !errors.Is(err, playback.ErrNothingLoaded) {
		t.Errorf("Play() with nothing loaded = %v", err)
	}
	s.InjectEmotion(mood.Neutral)
	eventually(t, "playing", func() bool {
		snap, _ := s.Snapshot()
		return snap.State == playback.Playing
	})

	if err := s.Toggle(); err != nil {
		t.Fatal(err)
	}
	snap, _ := s.Snapshot()
	if snap.State != playback.Paused {
		t.Errorf("state = %s", snap.State)
	}

	s.SetVolume(0)
	s.ToggleMute()
	snap, _ = s.Snapshot()
	if snap.IsMuted || snap.Volume != playback.DefaultVolume {
		t.Errorf("after unmute: %+v", snap)
	}

	if err := s.Skip(); err != nil {
		t.Fatal(err)
	}
	if err := s.StopSampling(); err != nil {
		t.Fatal(err)
	}
	st, _ := s.Status()
	if st.Kind != StatusStopped {
		t.Errorf("status = %s", st.Kind)
	}
}

func TestSession_Overview(t *testing.T) {
	s := startSession(t, Observers{})
	s.InjectEmotion(mood.Happy)
	s.InjectEmotion(mood.Happy)
	s.InjectEmotion(mood.Sad)

	eventually(t, "three events", func() bool {
		h, _ := s.History()
		return len(h) == 3
	})
	ov, err := s.Overview()
	if err != nil {
		t.Fatal(err)
	}
	if ov.SessionID != s.ID() || ov.Latest == nil || ov.Latest.Category != mood.Sad {
		t.Errorf("overview = %+v", ov)
	}
	if ov.Dominant != mood.Happy {
		t.Errorf("dominant = %s", ov.Dominant)
	}
}
