// Package sampler turns a live frame source into a stream of accepted mood
// events. It runs inference on a fixed cadence, gates results on confidence
// and hands each accepted event to an emit callback.
//
// Only one inference is in flight at a time. A tick that fires while the
// previous inference is still running is dropped and counted as skipped.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/moodbox/internal/log"
	"github.com/teslashibe/moodbox/pkg/classifier"
	"github.com/teslashibe/moodbox/pkg/media"
	"github.com/teslashibe/moodbox/pkg/mood"
)

// Defaults.
const (
	DefaultInterval  = 100 * time.Millisecond
	DefaultThreshold = mood.AcceptThreshold
)

// Config tunes a Sampler.
type Config struct {
	Interval  time.Duration
	Threshold float64

	// Source is stamped on emitted events.
	Source string
}

// DefaultConfig returns the standard cadence and gate.
func DefaultConfig() Config {
	return Config{
		Interval:  DefaultInterval,
		Threshold: DefaultThreshold,
		Source:    "camera",
	}
}

// Annotator draws a detection onto a JPEG frame.
type Annotator func(jpeg []byte, box classifier.BoundingBox, label string, confidence float64) ([]byte, error)

// OverlaySink receives annotated frames. It is called from the inference
// goroutine and must not block.
type OverlaySink func(frame []byte)

// Stats is a snapshot of sampler counters.
type Stats struct {
	Ticks      uint64 `json:"ticks"`
	Detections uint64 `json:"detections"`
	Accepted   uint64 `json:"accepted"`
	Rejected   uint64 `json:"rejected"`
	Skipped    uint64 `json:"skipped"`
	Errors     uint64 `json:"errors"`
}

type counters struct {
	ticks, detections, accepted, rejected, skipped, errors atomic.Uint64
}

// Sampler polls a media source and classifies frames.
type Sampler struct {
	cfg      Config
	src      media.Source
	clf      classifier.Classifier
	annotate Annotator
	overlay  OverlaySink
	stats    counters
	logger   *slog.Logger
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithOverlay enables annotated frame output.
func WithOverlay(annotate Annotator, sink OverlaySink) Option {
	return func(s *Sampler) {
		s.annotate = annotate
		s.overlay = sink
	}
}

// New creates a sampler over src and clf. Zero config fields take defaults.
func New(src media.Source, clf classifier.Classifier, cfg Config, opts ...Option) *Sampler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Source == "" {
		cfg.Source = def.Source
	}

	s := &Sampler{
		cfg:    cfg,
		src:    src,
		clf:    clf,
		logger: log.With("component", "sampler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type tickResult struct {
	event *mood.Event
	err   error
}

// Run samples until ctx is cancelled or a fatal error occurs. Emission
// happens on the calling goroutine, at most once per tick and in tick order.
//
// Run returns nil when ctx is cancelled. It returns an error wrapping
// classifier.ErrInferenceUnavailable or media.ErrMediaUnavailable when the
// engine or source fails for good.
func (s *Sampler) Run(ctx context.Context, emit func(mood.Event)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	results := make(chan tickResult, 1)
	inflight := false

	s.logger.Info("sampling started", "interval", s.cfg.Interval, "threshold", s.cfg.Threshold)

	for {
		select {
		case <-ctx.Done():
			if inflight {
				<-results
			}
			s.logger.Info("sampling stopped", "stats", s.Stats())
			return nil

		case <-s.src.Done():
			err := s.src.Err()
			if err == nil {
				err = media.ErrMediaUnavailable
			}
			s.logger.Warn("media source ended", "error", err)
			return err

		case <-ticker.C:
			s.stats.ticks.Add(1)
			if inflight {
				s.stats.skipped.Add(1)
				continue
			}
			inflight = true
			go func() {
				results <- s.tick(ctx)
			}()

		case r := <-results:
			inflight = false
			if r.err != nil {
				if isFatal(r.err) {
					s.logger.Error("sampling halted", "error", r.err)
					return r.err
				}
				s.stats.errors.Add(1)
				s.logger.Debug("tick failed", "error", r.err)
				continue
			}
			if r.event != nil {
				emit(*r.event)
			}
		}
	}
}

// tick captures one frame and classifies it.
func (s *Sampler) tick(ctx context.Context) tickResult {
	jpeg, err := s.src.CaptureJPEG()
	if err != nil {
		return tickResult{err: fmt.Errorf("capture: %w", err)}
	}

	det, err := s.clf.Infer(ctx, classifier.Frame{JPEG: jpeg, CapturedAt: time.Now()})
	if err != nil {
		return tickResult{err: err}
	}
	if det == nil {
		return tickResult{}
	}
	s.stats.detections.Add(1)

	label, score := det.Top()
	category := mood.MapLabel(label)
	s.drawOverlay(jpeg, det.Box, string(category), score)

	if score <= s.cfg.Threshold {
		s.stats.rejected.Add(1)
		return tickResult{}
	}

	ev, err := mood.NewEvent(category, score, s.cfg.Source)
	if err != nil {
		return tickResult{err: err}
	}
	s.stats.accepted.Add(1)
	s.logger.Debug("emotion accepted", "label", label, "category", ev.Category, "confidence", score)
	return tickResult{event: &ev}
}

func (s *Sampler) drawOverlay(jpeg []byte, box classifier.BoundingBox, label string, score float64) {
	if s.annotate == nil || s.overlay == nil {
		return
	}
	frame, err := s.annotate(jpeg, box, label, score)
	if err != nil {
		s.logger.Debug("overlay failed", "error", err)
		return
	}
	s.overlay(frame)
}

// Stats returns a snapshot of the counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Ticks:      s.stats.ticks.Load(),
		Detections: s.stats.detections.Load(),
		Accepted:   s.stats.accepted.Load(),
		Rejected:   s.stats.rejected.Load(),
		Skipped:    s.stats.skipped.Load(),
		Errors:     s.stats.errors.Load(),
	}
}

// Close releases the media source. The classifier is owned by the caller.
func (s *Sampler) Close() error {
	return s.src.Close()
}

func isFatal(err error) bool {
	return errors.Is(err, classifier.ErrInferenceUnavailable) ||
		errors.Is(err, media.ErrMediaUnavailable)
}
