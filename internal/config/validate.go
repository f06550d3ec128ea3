package config

import (
	"errors"
	"fmt"
)

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Sampler.IntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("sampler.interval_ms must be positive, got %d", c.Sampler.IntervalMS))
	}
	if c.Sampler.Threshold < 0 || c.Sampler.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("sampler.threshold must be in [0,1), got %v", c.Sampler.Threshold))
	}

	switch c.Media.Kind {
	case "camera":
		if c.Media.Device == "" {
			errs = append(errs, errors.New("media.device is required for camera sources"))
		}
	case "webrtc":
		if c.Media.URL == "" {
			errs = append(errs, errors.New("media.url is required for webrtc sources"))
		}
	default:
		errs = append(errs, fmt.Errorf("media.kind must be camera or webrtc, got %q", c.Media.Kind))
	}

	switch c.Classifier.Kind {
	case "gocv":
		if c.Classifier.FaceModel == "" || c.Classifier.ExpressionModel == "" {
			errs = append(errs, errors.New("classifier.face_model and classifier.expression_model are required for gocv"))
		}
	case "remote":
		if c.Classifier.RemoteURL == "" {
			errs = append(errs, errors.New("classifier.remote_url is required for remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("classifier.kind must be gocv or remote, got %q", c.Classifier.Kind))
	}

	if c.Catalog.Path != "" && c.Catalog.URL != "" {
		errs = append(errs, errors.New("catalog.path and catalog.url are mutually exclusive"))
	}

	if c.Playback.Sink != "gst" && c.Playback.Sink != "sim" {
		errs = append(errs, fmt.Errorf("playback.sink must be gst or sim, got %q", c.Playback.Sink))
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		errs = append(errs, fmt.Errorf("playback.volume must be in [0,1], got %v", c.Playback.Volume))
	}
	if c.Playback.MaxRedraws < 0 {
		errs = append(errs, fmt.Errorf("playback.max_redraws must not be negative, got %d", c.Playback.MaxRedraws))
	}

	if c.Web.Enabled && c.Web.Addr == "" {
		errs = append(errs, errors.New("web.addr is required when the dashboard is enabled"))
	}

	return errors.Join(errs...)
}
