package playback

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/moodbox/pkg/catalog"
)

var simTrack = catalog.Track{Title: "t", AssetRef: "t.mp3", Category: "happy"}

func nextEvent(t *testing.T, ch <-chan SinkEvent) SinkEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink event")
		return SinkEvent{}
	}
}

func TestSimSink_PlaysToEnd(t *testing.T) {
	sink := NewSimSink(SimConfig{Duration: 30 * time.Millisecond, Tick: 5 * time.Millisecond})
	defer sink.Close()

	if err := sink.Load(7, simTrack); err != nil {
		t.Fatal(err)
	}
	if err := sink.Play(); err != nil {
		t.Fatal(err)
	}

	var sawMeta, sawProgress bool
	for {
		ev := nextEvent(t, sink.Events())
		if ev.Token != 7 {
			t.Fatalf("token = %d", ev.Token)
		}
		switch ev.Kind {
		case EventMetadata:
			sawMeta = ev.Duration == 30*time.Millisecond
		case EventProgress:
			sawProgress = true
		case EventEnded:
			if !sawMeta || !sawProgress {
				t.Errorf("ended before metadata/progress: meta=%v progress=%v", sawMeta, sawProgress)
			}
			return
		}
	}
}

func TestSimSink_DrivesSelector(t *testing.T) {
	sink := NewSimSink(SimConfig{Duration: 20 * time.Millisecond, Tick: 5 * time.Millisecond})
	defer sink.Close()
	s := NewSelector(catalog.Default(), sink, Config{})

	var changes int
	s.OnTrackChange = func(catalog.Track) { changes++ }
	s.HandleEmotion("happy")

	deadline := time.After(2 * time.Second)
	for changes < 3 {
		select {
		case ev := <-sink.Events():
			if err := s.HandleSinkEvent(ev); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatalf("only %d track changes", changes)
		}
	}
	cur, _ := s.Current()
	if cur.Category != "happy" {
		t.Errorf("category drifted to %s", cur.Category)
	}
}

func TestSimSink_Reject(t *testing.T) {
	sink := NewSimSink(SimConfig{Reject: func(catalog.Track) bool { return true }})
	defer sink.Close()

	if err := sink.Play(); !errors.Is(err, ErrNothingLoaded) {
		t.Errorf("Play() before load = %v", err)
	}
	sink.Load(1, simTrack)
	if err := sink.Play(); !errors.Is(err, ErrAutoplayBlocked) {
		t.Errorf("Play() = %v, want ErrAutoplayBlocked", err)
	}
}

func TestSimSink_PauseStopsProgress(t *testing.T) {
	sink := NewSimSink(SimConfig{Tick: 2 * time.Millisecond})
	defer sink.Close()

	sink.Load(1, simTrack)
	sink.Play()
	nextEvent(t, sink.Events())
	sink.Pause()

	// drain anything sent before the pause took effect
	time.Sleep(10 * time.Millisecond)
	for len(sink.Events()) > 0 {
		<-sink.Events()
	}

	select {
	case ev := <-sink.Events():
		t.Errorf("event after pause: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSimSink_VolumeAndClose(t *testing.T) {
	sink := NewSimSink(SimConfig{})
	sink.SetVolume(0.3)
	if sink.Volume() != 0.3 {
		t.Errorf("Volume() = %v", sink.Volume())
	}
	sink.Close()
	sink.Close()
	if err := sink.Load(1, simTrack); err == nil {
		t.Error("Load after Close should fail")
	}
}

type fakeStream struct {
	uri    string
	bus    chan streamEvent
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	calls    []string
	volume   float64
	muted    bool
	position time.Duration
	duration time.Duration
}

func (f *fakeStream) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeStream) Play() error  { f.record("play"); return nil }
func (f *fakeStream) Pause() error { f.record("pause"); return nil }

func (f *fakeStream) SetVolume(v float64, muted bool) error {
	f.mu.Lock()
	f.volume, f.muted = v, muted
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Position() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, true
}

func (f *fakeStream) Duration() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration, f.duration > 0
}

func (f *fakeStream) Next(timeout time.Duration) streamEvent {
	select {
	case ev := <-f.bus:
		return ev
	case <-f.closed:
		return streamEvent{}
	case <-time.After(timeout):
		return streamEvent{}
	}
}

func (f *fakeStream) Close() { f.once.Do(func() { close(f.closed) }) }

func (f *fakeStream) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeStream) snapshot() (calls []string, volume float64, muted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), f.volume, f.muted
}

type fakeOpener struct {
	mu       sync.Mutex
	streams  []*fakeStream
	duration time.Duration
	err      error
}

func (o *fakeOpener) open(uri string) (stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	st := &fakeStream{
		uri:      uri,
		bus:      make(chan streamEvent, 4),
		closed:   make(chan struct{}),
		position: 3 * time.Second,
		duration: o.duration,
	}
	o.streams = append(o.streams, st)
	return st, nil
}

func (o *fakeOpener) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if i >= len(o.streams) {
		t.Fatalf("stream %d not opened (have %d)", i, len(o.streams))
	}
	return o.streams[i]
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.streams)
}

// waitKind skips events until one of kind arrives. Events carrying a token
// other than want fail the test.
func waitKind(t *testing.T, ch <-chan SinkEvent, kind EventKind, want uint64) SinkEvent {
	t.Helper()
	for {
		ev := nextEvent(t, ch)
		if ev.Token != want {
			t.Fatalf("event %v carries token %d, want %d", ev.Kind, ev.Token, want)
		}
		if ev.Kind == kind {
			return ev
		}
	}
}

func TestGstSink(t *testing.T) {
	track2 := catalog.Track{Title: "u", AssetRef: "u.mp3", Category: "sad"}

	tests := []struct {
		name     string
		duration time.Duration
		run      func(t *testing.T, g *GstSink, o *fakeOpener)
	}{
		{
			name: "end of stream ends the track",
			run: func(t *testing.T, g *GstSink, o *fakeOpener) {
				mustLoadPlay(t, g, 1, simTrack)
				st := o.stream(t, 0)
				st.bus <- streamEvent{kind: streamEOS}
				waitKind(t, g.Events(), EventEnded, 1)

				if !st.isClosed() {
					t.Error("finished stream was not closed")
				}
				if err := g.Play(); err != nil {
					t.Fatalf("replay: %v", err)
				}
				if o.count() != 2 {
					t.Errorf("replay opened %d streams, want 2", o.count())
				}
			},
		},
		{
			name: "bus error reports EventError",
			run: func(t *testing.T, g *GstSink, o *fakeOpener) {
				mustLoadPlay(t, g, 4, simTrack)
				o.stream(t, 0).bus <- streamEvent{kind: streamError, err: errors.New("gstreamer: decoder missing")}
				ev := waitKind(t, g.Events(), EventError, 4)
				if ev.Err == nil || !strings.Contains(ev.Err.Error(), "decoder missing") {
					t.Errorf("err = %v", ev.Err)
				}
			},
		},
		{
			name: "load supersedes the previous track",
			run: func(t *testing.T, g *GstSink, o *fakeOpener) {
				mustLoadPlay(t, g, 1, simTrack)
				mustLoadPlay(t, g, 2, track2)
				old := o.stream(t, 0)
				if !old.isClosed() {
					t.Fatal("superseded stream still open")
				}
				old.bus <- streamEvent{kind: streamEOS}
				o.stream(t, 1).bus <- streamEvent{kind: streamEOS}
				for {
					ev := nextEvent(t, g.Events())
					if ev.Kind != EventEnded {
						continue
					}
					if ev.Token != 2 {
						t.Fatalf("ended token = %d, want 2", ev.Token)
					}
					break
				}
				if got := o.stream(t, 1).uri; !strings.HasSuffix(got, "/u.mp3") {
					t.Errorf("uri = %q", got)
				}
			},
		},
		{
			name: "pause and resume",
			run: func(t *testing.T, g *GstSink, o *fakeOpener) {
				mustLoadPlay(t, g, 1, simTrack)
				ev := waitKind(t, g.Events(), EventProgress, 1)
				if ev.Elapsed != 3*time.Second {
					t.Errorf("elapsed = %v, want position of the element", ev.Elapsed)
				}
				for _, step := range []func() error{g.Pause, g.Pause, g.Play, g.Play} {
					if err := step(); err != nil {
						t.Fatal(err)
					}
				}
				calls, _, _ := o.stream(t, 0).snapshot()
				want := []string{"play", "pause", "play"}
				if strings.Join(calls, ",") != strings.Join(want, ",") {
					t.Errorf("calls = %v, want %v", calls, want)
				}
			},
		},
		{
			name: "mute applies to the playing track",
			run: func(t *testing.T, g *GstSink, o *fakeOpener) {
				g.SetVolume(0.4)
				mustLoadPlay(t, g, 1, simTrack)
				st := o.stream(t, 0)
				if _, v, m := st.snapshot(); v != 0.4 || m {
					t.Fatalf("initial volume = %v muted=%v", v, m)
				}

				tr := newTransport(g, 0.4)
				tr.ToggleMute()
				if _, v, m := st.snapshot(); v != 0 || !m {
					t.Errorf("after mute: volume = %v muted=%v", v, m)
				}
				tr.ToggleMute()
				if _, v, m := st.snapshot(); v != 0.4 || m {
					t.Errorf("after unmute: volume = %v muted=%v", v, m)
				}
			},
		},
		{
			name:     "duration is reported once prerolled",
			duration: 90 * time.Second,
			run: func(t *testing.T, g *GstSink, o *fakeOpener) {
				if err := g.Load(9, simTrack); err != nil {
					t.Fatal(err)
				}
				ev := waitKind(t, g.Events(), EventMetadata, 9)
				if ev.Duration != 90*time.Second {
					t.Errorf("duration = %v", ev.Duration)
				}
			},
		},
		{
			name: "stop unloads",
			run: func(t *testing.T, g *GstSink, o *fakeOpener) {
				mustLoadPlay(t, g, 1, simTrack)
				g.Stop()
				if !o.stream(t, 0).isClosed() {
					t.Error("stopped stream still open")
				}
				if err := g.Play(); !errors.Is(err, ErrNothingLoaded) {
					t.Errorf("Play after Stop = %v, want ErrNothingLoaded", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &fakeOpener{duration: tt.duration}
			g := newGstSink(GstConfig{ProgressInterval: 5 * time.Millisecond}, o.open)
			defer g.Close()
			tt.run(t, g, o)
		})
	}
}

func TestGstSink_OpenFailure(t *testing.T) {
	o := &fakeOpener{err: errors.New("no playbin")}
	g := newGstSink(GstConfig{}, o.open)
	defer g.Close()

	if err := g.Play(); !errors.Is(err, ErrNothingLoaded) {
		t.Errorf("Play before Load = %v", err)
	}
	if err := g.Load(1, simTrack); err == nil {
		t.Error("Load should surface the open error")
	}
	g.Close()
	if err := g.Load(2, simTrack); !errors.Is(err, errSinkClosed) {
		t.Errorf("Load after Close = %v", err)
	}
}

func mustLoadPlay(t *testing.T, g *GstSink, token uint64, track catalog.Track) {
	t.Helper()
	if err := g.Load(token, track); err != nil {
		t.Fatal(err)
	}
	if err := g.Play(); err != nil {
		t.Fatal(err)
	}
}

func TestAssetURI(t *testing.T) {
	tests := []struct {
		ref    string
		prefix string
	}{
		{"https://example.com/a.wav", "https://example.com/a.wav"},
		{"file:///music/a.mp3", "file:///music/a.mp3"},
		{"/music/a b.mp3", "file:///music/a%20b.mp3"},
		{"relative.mp3", "file:///"},
	}
	for _, tt := range tests {
		got, err := assetURI(tt.ref)
		if err != nil {
			t.Fatalf("assetURI(%q): %v", tt.ref, err)
		}
		if !strings.HasPrefix(got, tt.prefix) {
			t.Errorf("assetURI(%q) = %q, want prefix %q", tt.ref, got, tt.prefix)
		}
	}
	if _, err := assetURI(""); err == nil {
		t.Error("empty ref should fail")
	}
}
