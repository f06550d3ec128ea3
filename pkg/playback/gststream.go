package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

type streamEventKind int

const (
	streamIdle streamEventKind = iota
	streamEOS
	streamError
	streamDurationChanged
)

type streamEvent struct {
	kind streamEventKind
	err  error
}

// stream is one loaded track inside the audio backend.
type stream interface {
	Play() error
	Pause() error
	SetVolume(v float64, muted bool) error
	Position() (time.Duration, bool)
	Duration() (time.Duration, bool)
	// Next waits up to timeout for the next bus message that matters.
	Next(timeout time.Duration) streamEvent
	Close()
}

var gstInit sync.Once

func initGst() {
	gstInit.Do(func() { gst.Init(nil) })
}

// playbinStream drives a single playbin element.
type playbinStream struct {
	elem *gst.Element
	bus  *gst.Bus
}

func openPlaybin(uri string) (stream, error) {
	initGst()

	elem, err := gst.NewElement("playbin")
	if err != nil {
		return nil, fmt.Errorf("failed to create playbin: %w", err)
	}
	if err := elem.SetProperty("uri", uri); err != nil {
		return nil, fmt.Errorf("set uri: %w", err)
	}
	// PAUSED prerolls the track so the duration query can answer before Play.
	if err := elem.SetState(gst.StatePaused); err != nil {
		elem.SetState(gst.StateNull)
		return nil, fmt.Errorf("preroll %s: %w", uri, err)
	}
	return &playbinStream{elem: elem, bus: elem.GetBus()}, nil
}

func (p *playbinStream) Play() error {
	return p.elem.SetState(gst.StatePlaying)
}

func (p *playbinStream) Pause() error {
	return p.elem.SetState(gst.StatePaused)
}

func (p *playbinStream) SetVolume(v float64, muted bool) error {
	if err := p.elem.SetProperty("volume", v); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	if err := p.elem.SetProperty("mute", muted); err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	return nil
}

func (p *playbinStream) Position() (time.Duration, bool) {
	ok, ns := p.elem.QueryPosition(gst.FormatTime)
	if !ok || ns < 0 {
		return 0, false
	}
	return time.Duration(ns), true
}

func (p *playbinStream) Duration() (time.Duration, bool) {
	ok, ns := p.elem.QueryDuration(gst.FormatTime)
	if !ok || ns <= 0 {
		return 0, false
	}
	return time.Duration(ns), true
}

func (p *playbinStream) Next(timeout time.Duration) streamEvent {
	msg := p.bus.TimedPop(timeout)
	if msg == nil {
		return streamEvent{}
	}
	switch msg.Type() {
	case gst.MessageEOS:
		return streamEvent{kind: streamEOS}
	case gst.MessageError:
		gerr := msg.ParseError()
		return streamEvent{
			kind: streamError,
			err:  fmt.Errorf("gstreamer: %s (%s)", gerr.Error(), gerr.DebugString()),
		}
	case gst.MessageDurationChanged:
		return streamEvent{kind: streamDurationChanged}
	}
	return streamEvent{}
}

func (p *playbinStream) Close() {
	p.elem.SetState(gst.StateNull)
}

// checkPlaybin verifies that GStreamer and its playbin element are installed.
func checkPlaybin() error {
	initGst()

	elem, err := gst.NewElement("playbin")
	if err != nil {
		return fmt.Errorf("GStreamer playbin not available: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}
