package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/moodbox/pkg/classifier"
	"github.com/teslashibe/moodbox/pkg/media"
	"github.com/teslashibe/moodbox/pkg/mood"
)

const fastInterval = 5 * time.Millisecond

// collector records emitted events.
type collector struct {
	mu     sync.Mutex
	events []mood.Event
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 64)}
}

func (c *collector) emit(ev mood.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *collector) snapshot() []mood.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mood.Event(nil), c.events...)
}

func (c *collector) waitFor(t *testing.T, n int) []mood.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, have %d", n, len(c.snapshot()))
		}
	}
}

func runAsync(ctx context.Context, s *Sampler, emit func(mood.Event)) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, emit) }()
	return errc
}

func TestSampler_Scenario(t *testing.T) {
	clf := classifier.NewMock(
		map[string]float64{"happy": 0.9, "sad": 0.1},
		map[string]float64{"sad": 0.3, "neutral": 0.2},
		map[string]float64{"sad": 0.7, "happy": 0.3},
	)
	s := New(media.NewStatic([]byte("frame")), clf, Config{Interval: fastInterval})
	c := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, s, c.emit)
	got := c.waitFor(t, 2)

	// let a few no-face ticks pass to prove nothing else is emitted
	time.Sleep(5 * fastInterval)
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run() = %v, want nil after cancel", err)
	}

	got = c.snapshot()
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(got), got)
	}
	want := []struct {
		cat  mood.Category
		conf float64
	}{{mood.Happy, 0.9}, {mood.Sad, 0.7}}
	for i, w := range want {
		if got[i].Category != w.cat || got[i].Confidence != w.conf {
			t.Errorf("event %d = (%s, %v), want (%s, %v)", i, got[i].Category, got[i].Confidence, w.cat, w.conf)
		}
		if got[i].Source != "camera" {
			t.Errorf("event %d source = %q", i, got[i].Source)
		}
	}

	st := s.Stats()
	if st.Accepted != 2 || st.Rejected != 1 || st.Detections != 3 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSampler_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		score float64
		want  bool
	}{
		{0.5, false},
		{0.500001, true},
		{0.49, false},
		{1.0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			s := New(media.NewStatic([]byte("f")), classifier.NewMock(map[string]float64{"angry": tt.score}), Config{})
			res := s.tick(context.Background())
			if res.err != nil {
				t.Fatal(res.err)
			}
			if got := res.event != nil; got != tt.want {
				t.Fatalf("accepted = %v, want %v", got, tt.want)
			}
			if tt.want && res.event.Category != mood.Frustrated {
				t.Errorf("category = %s, want frustrated", res.event.Category)
			}
		})
	}
}

func TestSampler_NoFaceIsNoOp(t *testing.T) {
	s := New(media.NewStatic([]byte("f")), classifier.NewMock(nil), Config{})
	res := s.tick(context.Background())
	if res.event != nil || res.err != nil {
		t.Fatalf("tick = %+v, want empty", res)
	}
	if st := s.Stats(); st.Detections != 0 {
		t.Errorf("detections = %d", st.Detections)
	}
}

func TestSampler_TickErrorsAreSwallowed(t *testing.T) {
	clf := &classifier.Mock{Script: []classifier.MockResponse{
		{Err: errors.New("corrupt frame")},
		{Err: classifier.ErrEmptyFrame},
		{Detection: &classifier.Detection{Scores: map[string]float64{"happy": 0.8}}},
	}}
	s := New(media.NewStatic([]byte("f")), clf, Config{Interval: fastInterval})
	c := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, s, c.emit)
	got := c.waitFor(t, 1)
	cancel()
	<-errc

	if got[0].Category != mood.Happy {
		t.Errorf("category = %s", got[0].Category)
	}
	if st := s.Stats(); st.Errors != 2 {
		t.Errorf("errors = %d, want 2", st.Errors)
	}
}

func TestSampler_NoFrameYetIsNotFatal(t *testing.T) {
	s := New(media.NewStatic(), classifier.NewMock(), Config{Interval: fastInterval})
	ctx, cancel := context.WithTimeout(context.Background(), 10*fastInterval)
	defer cancel()

	if err := s.Run(ctx, func(mood.Event) { t.Error("unexpected event") }); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if st := s.Stats(); st.Errors == 0 {
		t.Error("expected capture errors to be counted")
	}
}

func TestSampler_InferenceUnavailableIsFatal(t *testing.T) {
	clf := classifier.WithError(fmt.Errorf("load model: %w", classifier.ErrInferenceUnavailable))
	s := New(media.NewStatic([]byte("f")), clf, Config{Interval: fastInterval})

	err := s.Run(context.Background(), func(mood.Event) {})
	if !errors.Is(err, classifier.ErrInferenceUnavailable) {
		t.Fatalf("Run() = %v, want ErrInferenceUnavailable", err)
	}
	if n := clf.CallCount(); n != 1 {
		t.Errorf("Infer called %d times after fatal error, want 1", n)
	}
}

func TestSampler_MediaRevoked(t *testing.T) {
	src := media.NewStatic([]byte("f"))
	s := New(src, classifier.NewMock(), Config{Interval: fastInterval})

	errc := runAsync(context.Background(), s, func(mood.Event) {})
	time.Sleep(3 * fastInterval)
	src.Revoke(errors.New("permission withdrawn"))

	select {
	case err := <-errc:
		if !errors.Is(err, media.ErrMediaUnavailable) {
			t.Fatalf("Run() = %v, want ErrMediaUnavailable", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after source was revoked")
	}
}

func TestSampler_SkipsWhileBusy(t *testing.T) {
	clf := classifier.NewMock()
	clf.Delay = 12 * fastInterval
	s := New(media.NewStatic([]byte("f")), clf, Config{Interval: fastInterval})

	ctx, cancel := context.WithTimeout(context.Background(), 30*fastInterval)
	defer cancel()
	if err := s.Run(ctx, func(mood.Event) {}); err != nil {
		t.Fatal(err)
	}

	st := s.Stats()
	if st.Skipped == 0 {
		t.Fatalf("no ticks skipped: %+v", st)
	}
	if calls := uint64(clf.CallCount()); calls+st.Skipped != st.Ticks {
		t.Errorf("calls %d + skipped %d != ticks %d", calls, st.Skipped, st.Ticks)
	}
}

func TestSampler_Overlay(t *testing.T) {
	tests := []struct {
		name   string
		scores map[string]float64
		want   string
	}{
		{"same name", map[string]float64{"sad": 0.42}, "sad (42.0%)"},
		{"mapped mood", map[string]float64{"angry": 0.92, "happy": 0.05}, "frustrated (92.0%)"},
		{"below threshold still drawn", map[string]float64{"surprised": 0.3}, "vibing (30.0%)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu     sync.Mutex
				frames [][]byte
				labels []string
			)
			annotate := func(jpeg []byte, box classifier.BoundingBox, label string, conf float64) ([]byte, error) {
				mu.Lock()
				labels = append(labels, classifier.OverlayLabel(label, conf))
				mu.Unlock()
				return append([]byte("annotated:"), jpeg...), nil
			}
			sink := func(frame []byte) {
				mu.Lock()
				frames = append(frames, frame)
				mu.Unlock()
			}

			s := New(media.NewStatic([]byte("f")),
				classifier.NewMock(tt.scores),
				Config{}, WithOverlay(annotate, sink))
			s.tick(context.Background())

			mu.Lock()
			defer mu.Unlock()
			if len(frames) != 1 || string(frames[0]) != "annotated:f" {
				t.Fatalf("frames = %q", frames)
			}
			if labels[0] != tt.want {
				t.Errorf("label = %q, want %q", labels[0], tt.want)
			}
		})
	}
}

func TestHandle_StopClosesSource(t *testing.T) {
	src := media.NewStatic([]byte("f"))
	s := New(src, classifier.NewMock(), Config{Interval: fastInterval})

	h := Start(context.Background(), s, func(mood.Event) {})
	time.Sleep(2 * fastInterval)
	h.Stop()
	h.Stop()

	if err := h.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
	select {
	case <-src.Done():
	default:
		t.Error("source not closed after Stop")
	}
}

func TestHandle_FatalClosesSource(t *testing.T) {
	src := media.NewStatic([]byte("f"))
	s := New(src, classifier.WithError(classifier.ErrInferenceUnavailable), Config{Interval: fastInterval})

	h := Start(context.Background(), s, func(mood.Event) {})
	if err := h.Wait(); !errors.Is(err, classifier.ErrInferenceUnavailable) {
		t.Fatalf("Wait() = %v", err)
	}
	<-src.Done()
}

func TestRunner_StartStopsPrevious(t *testing.T) {
	var r Runner
	first := media.NewStatic([]byte("a"))
	second := media.NewStatic([]byte("b"))

	h1 := r.Start(context.Background(), New(first, classifier.NewMock(), Config{Interval: fastInterval}), func(mood.Event) {})
	h2 := r.Start(context.Background(), New(second, classifier.NewMock(), Config{Interval: fastInterval}), func(mood.Event) {})

	select {
	case <-h1.Done():
	default:
		t.Fatal("first handle still running")
	}
	select {
	case <-first.Done():
	default:
		t.Fatal("first source not released")
	}
	if r.Current() != h2 {
		t.Error("Current() is not the second handle")
	}

	r.Stop()
	<-second.Done()
	if r.Current() != nil {
		t.Error("Current() not cleared")
	}
}
