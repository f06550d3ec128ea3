package main

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/moodbox/internal/config"
	"github.com/teslashibe/moodbox/internal/log"
	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/classifier"
	"github.com/teslashibe/moodbox/pkg/media"
	"github.com/teslashibe/moodbox/pkg/playback"
	"github.com/teslashibe/moodbox/pkg/sampler"
)

const simTrackDuration = 3 * time.Minute

func loadCatalog(ctx context.Context, cfg config.Catalog) (*catalog.Catalog, error) {
	switch {
	case cfg.Path != "":
		return catalog.Load(cfg.Path)
	case cfg.URL != "":
		return catalog.LoadURL(ctx, cfg.URL)
	default:
		return catalog.Default(), nil
	}
}

func openSink(cfg config.Playback) (playback.Sink, error) {
	switch cfg.Sink {
	case "sim":
		return playback.NewSimSink(playback.SimConfig{Duration: simTrackDuration}), nil
	case "gst":
		sink := playback.NewGstSink(playback.GstConfig{})
		if err := sink.Available(); err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

func playbackConfig(cfg config.Playback) playback.Config {
	volume := cfg.Volume
	return playback.Config{
		MaxRedraws: cfg.MaxRedraws,
		Volume:     &volume,
	}
}

func openClassifier(ctx context.Context, cfg config.Classifier) (classifier.Classifier, error) {
	switch cfg.Kind {
	case "remote":
		rc := classifier.DefaultRemoteConfig()
		rc.URL = cfg.RemoteURL
		return classifier.NewRemote(ctx, rc)
	case "gocv":
		cc := classifier.DefaultConfig()
		cc.FaceModelPath = cfg.FaceModel
		cc.ExpressionModelPath = cfg.ExpressionModel
		return classifier.NewGoCV(cc)
	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Kind)
	}
}

func openMedia(ctx context.Context, cfg config.Media) (media.Source, error) {
	switch cfg.Kind {
	case "webrtc":
		return media.DialWebRTC(ctx, media.WebRTCConfig{
			SignallingURL:  cfg.URL,
			ConnectTimeout: 10 * time.Second,
		})
	case "camera":
		return media.OpenCamera(media.CameraConfig{
			Device: cfg.Device,
			Width:  cfg.Width,
			Height: cfg.Height,
		})
	default:
		return nil, fmt.Errorf("unknown media source %q", cfg.Kind)
	}
}

// newCameraSampler opens the media source and wires it to clf. frames, when
// non-nil, receives annotated JPEGs.
func newCameraSampler(ctx context.Context, cfg *config.Config, clf classifier.Classifier, frames sampler.OverlaySink) (*sampler.Sampler, error) {
	src, err := openMedia(ctx, cfg.Media)
	if err != nil {
		return nil, err
	}

	var opts []sampler.Option
	if cfg.Sampler.Overlay && frames != nil {
		opts = append(opts, sampler.WithOverlay(classifier.Annotate, frames))
	}
	log.Info("media source ready", "kind", cfg.Media.Kind, "device", cfg.Media.Device)

	return sampler.New(src, clf, sampler.Config{
		Interval:  cfg.Sampler.Interval(),
		Threshold: cfg.Sampler.Threshold,
		Source:    cfg.Media.Kind,
	}, opts...), nil
}
