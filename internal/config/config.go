// Package config loads moodbox configuration from a TOML file, an optional
// .env file and MOODBOX_* environment overrides.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// SampleConfig returns a commented example configuration file.
func SampleConfig() string {
	return sampleConfig
}

// Logging configures the global logger.
type Logging struct {
	Level string `toml:"level"`
}

// Sampler configures the detection cadence and confidence gate.
type Sampler struct {
	IntervalMS int     `toml:"interval_ms"`
	Threshold  float64 `toml:"threshold"`
	Overlay    bool    `toml:"overlay"`
}

// Interval returns the sampling period.
func (s Sampler) Interval() time.Duration {
	return time.Duration(s.IntervalMS) * time.Millisecond
}

// Media selects and configures the frame source.
type Media struct {
	Kind   string `toml:"kind"`   // camera | webrtc
	Device string `toml:"device"` // device index, file, URL or GStreamer pipeline
	URL    string `toml:"url"`    // webrtc signalling URL
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// Classifier selects and configures the inference engine.
type Classifier struct {
	Kind            string `toml:"kind"` // gocv | remote
	FaceModel       string `toml:"face_model"`
	ExpressionModel string `toml:"expression_model"`
	RemoteURL       string `toml:"remote_url"`
}

// Catalog points at the track catalog. Empty means the embedded catalog.
type Catalog struct {
	Path string `toml:"path"`
	URL  string `toml:"url"`
}

// Playback configures selection and the audio sink.
type Playback struct {
	Sink       string  `toml:"sink"` // gst | sim
	Volume     float64 `toml:"volume"`
	MaxRedraws int     `toml:"max_redraws"`
}

// Web configures the dashboard.
type Web struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Static  string `toml:"static"`
}

// Config is the root configuration.
type Config struct {
	StateDir   string     `toml:"state_dir"`
	Logging    Logging    `toml:"logging"`
	Sampler    Sampler    `toml:"sampler"`
	Media      Media      `toml:"media"`
	Classifier Classifier `toml:"classifier"`
	Catalog    Catalog    `toml:"catalog"`
	Playback   Playback   `toml:"playback"`
	Web        Web        `toml:"web"`
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/moodbox/config.toml")
}

// Load reads configuration. When path is empty, MOODBOX_CONFIG, ./moodbox.toml
// and the per-user path are tried in order; if none exists the defaults are
// used. It returns the config, the file that was read ("" for none) and an
// error.
func Load(path string) (*Config, string, error) {
	// A missing .env is normal; only a malformed one is an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}
	if resolved != "" {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", fmt.Errorf("open config %s: %w", resolved, err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func resolveConfigPath(path string) (string, error) {
	if path == "" {
		path = os.Getenv("MOODBOX_CONFIG")
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return expanded, nil
	}

	candidates := []string{"moodbox.toml"}
	if userPath, err := DefaultConfigPath(); err == nil {
		candidates = append(candidates, userPath)
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Abs(candidate)
		}
	}
	return "", nil
}

// applyEnv applies MOODBOX_* overrides on top of file values.
func (c *Config) applyEnv() {
	c.StateDir = getEnv("MOODBOX_STATE_DIR", c.StateDir)
	c.Logging.Level = getEnv("MOODBOX_LOG_LEVEL", c.Logging.Level)
	c.Media.Kind = getEnv("MOODBOX_MEDIA", c.Media.Kind)
	c.Media.Device = getEnv("MOODBOX_MEDIA_DEVICE", c.Media.Device)
	c.Media.URL = getEnv("MOODBOX_MEDIA_URL", c.Media.URL)
	c.Classifier.Kind = getEnv("MOODBOX_CLASSIFIER", c.Classifier.Kind)
	c.Classifier.RemoteURL = getEnv("MOODBOX_CLASSIFIER_URL", c.Classifier.RemoteURL)
	c.Catalog.Path = getEnv("MOODBOX_CATALOG", c.Catalog.Path)
	c.Catalog.URL = getEnv("MOODBOX_CATALOG_URL", c.Catalog.URL)
	c.Playback.Sink = getEnv("MOODBOX_SINK", c.Playback.Sink)
	c.Web.Addr = getEnv("MOODBOX_WEB_ADDR", c.Web.Addr)
}

func (c *Config) normalize() error {
	var err error
	if c.StateDir, err = expandPath(c.StateDir); err != nil {
		return err
	}
	if c.Catalog.Path != "" {
		if c.Catalog.Path, err = expandPath(c.Catalog.Path); err != nil {
			return err
		}
	}
	c.Media.Kind = strings.ToLower(c.Media.Kind)
	c.Classifier.Kind = strings.ToLower(c.Classifier.Kind)
	c.Playback.Sink = strings.ToLower(c.Playback.Sink)
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
