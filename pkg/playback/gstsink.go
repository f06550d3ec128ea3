package playback

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/teslashibe/moodbox/internal/log"
	"github.com/teslashibe/moodbox/pkg/catalog"
)

// GstConfig configures a GstSink.
type GstConfig struct {
	// ProgressInterval is how often progress events are emitted. It also
	// bounds how long the bus watcher blocks between checks.
	ProgressInterval time.Duration
}

// GstSink plays tracks through a GStreamer playbin, one element per loaded
// track. End of stream and errors come from the element's bus; position and
// duration are queried from the element. Volume and mute are set on the live
// element.
type GstSink struct {
	cfg    GstConfig
	open   func(uri string) (stream, error)
	events chan SinkEvent
	done   chan struct{}

	mu      sync.Mutex
	token   uint64
	uri     string
	cur     stream
	playing bool
	volume  float64
	closed  bool
}

// NewGstSink creates a GStreamer-backed sink.
func NewGstSink(cfg GstConfig) *GstSink {
	return newGstSink(cfg, openPlaybin)
}

func newGstSink(cfg GstConfig, open func(string) (stream, error)) *GstSink {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 250 * time.Millisecond
	}
	return &GstSink{
		cfg:    cfg,
		open:   open,
		events: make(chan SinkEvent, 16),
		done:   make(chan struct{}),
		volume: DefaultVolume,
	}
}

// Available reports whether GStreamer can build a playbin.
func (g *GstSink) Available() error {
	return checkPlaybin()
}

// Load implements Sink. The track is prerolled so its duration is reported
// before playback starts.
func (g *GstSink) Load(token uint64, track catalog.Track) error {
	uri, err := assetURI(track.AssetRef)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errSinkClosed
	}
	g.closeStreamLocked()
	g.token = token
	g.uri = uri
	return g.openLocked()
}

// Play implements Sink. A track that already ended or failed is reopened.
func (g *GstSink) Play() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errSinkClosed
	}
	if g.uri == "" {
		return ErrNothingLoaded
	}
	if g.playing {
		return nil
	}
	if g.cur == nil {
		if err := g.openLocked(); err != nil {
			return fmt.Errorf("%w: %v", ErrAutoplayBlocked, err)
		}
	}
	if err := g.cur.Play(); err != nil {
		return fmt.Errorf("%w: %v", ErrAutoplayBlocked, err)
	}
	g.playing = true
	return nil
}

// Pause implements Sink.
func (g *GstSink) Pause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil || !g.playing {
		return nil
	}
	if err := g.cur.Pause(); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	g.playing = false
	return nil
}

// SetVolume implements Sink. Zero also sets the element's mute flag.
func (g *GstSink) SetVolume(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.volume = v
	if g.cur == nil {
		return
	}
	if err := g.cur.SetVolume(v, v == 0); err != nil {
		log.Warn("gst volume change failed", "volume", v, "error", err)
	}
}

// Stop implements Sink.
func (g *GstSink) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeStreamLocked()
	g.uri = ""
	g.token = 0
}

// Events implements Sink.
func (g *GstSink) Events() <-chan SinkEvent {
	return g.events
}

// Close implements Sink.
func (g *GstSink) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.closeStreamLocked()
	close(g.done)
	return nil
}

func (g *GstSink) openLocked() error {
	st, err := g.open(g.uri)
	if err != nil {
		return err
	}
	if err := st.SetVolume(g.volume, g.volume == 0); err != nil {
		log.Warn("gst volume change failed", "volume", g.volume, "error", err)
	}
	g.cur = st
	g.playing = false
	go g.watch(g.token, st)
	return nil
}

func (g *GstSink) closeStreamLocked() {
	if g.cur == nil {
		return
	}
	g.cur.Close()
	g.cur = nil
	g.playing = false
}

// current reports whether st is still the loaded stream, and whether it is
// playing.
func (g *GstSink) current(st stream) (ok, playing bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur == st, g.playing
}

// release drops st after it ended or failed. It stays loaded by URI so Play
// can start it again.
func (g *GstSink) release(st stream) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur != st {
		return false
	}
	g.closeStreamLocked()
	return true
}

// watch turns bus messages and position queries of st into sink events.
// It exits once st is replaced, stopped, or finished.
func (g *GstSink) watch(token uint64, st stream) {
	var (
		haveDuration bool
		lastProgress time.Time
	)
	for {
		select {
		case <-g.done:
			return
		default:
		}

		ev := st.Next(g.cfg.ProgressInterval)
		ok, playing := g.current(st)
		if !ok {
			return
		}

		switch ev.kind {
		case streamEOS:
			if g.release(st) {
				g.send(SinkEvent{Token: token, Kind: EventEnded})
			}
			return
		case streamError:
			if g.release(st) {
				log.Warn("gst playback failed", "token", token, "error", ev.err)
				g.send(SinkEvent{Token: token, Kind: EventError, Err: ev.err})
			}
			return
		case streamDurationChanged:
			haveDuration = false
		}

		if !haveDuration {
			if d, ok := st.Duration(); ok {
				haveDuration = true
				g.send(SinkEvent{Token: token, Kind: EventMetadata, Duration: d})
			}
		}
		if playing && time.Since(lastProgress) >= g.cfg.ProgressInterval {
			if pos, ok := st.Position(); ok {
				lastProgress = time.Now()
				g.send(SinkEvent{Token: token, Kind: EventProgress, Elapsed: pos})
			}
		}
	}
}

func (g *GstSink) send(ev SinkEvent) {
	select {
	case g.events <- ev:
	case <-g.done:
	}
}

// assetURI turns an asset reference into something playbin accepts.
func assetURI(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("playback: empty asset reference")
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return ref, nil
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return "", fmt.Errorf("resolve asset %q: %w", ref, err)
	}
	return (&url.URL{Scheme: "file", Path: abs}).String(), nil
}
