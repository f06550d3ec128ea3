package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/moodbox/internal/config"
	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/mood"
	"github.com/teslashibe/moodbox/pkg/playback"
	"github.com/teslashibe/moodbox/pkg/sampler"
)

// isolate points config discovery at an empty temp directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("HOME", dir)
	t.Setenv("MOODBOX_CONFIG", "")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "moodbox "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestConfigSample(t *testing.T) {
	out, err := execute(t, "config", "sample")
	if err != nil {
		t.Fatal(err)
	}
	if out != config.SampleConfig() {
		t.Error("sample output differs from embedded sample")
	}
}

func TestConfigInitThenValidate(t *testing.T) {
	dir := isolate(t)
	target := filepath.Join(dir, "moodbox.toml")

	if _, err := execute(t, "config", "init", "--path", target); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "init", "--path", target); err == nil {
		t.Error("second init without --overwrite should fail")
	}

	out, err := execute(t, "config", "validate")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, target) {
		t.Errorf("validate should name %s, got %q", target, out)
	}
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[playback]\nvolume = 3.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "--config", path, "config", "validate")
	if err == nil || !strings.Contains(err.Error(), "playback.volume") {
		t.Errorf("err = %v", err)
	}
}

func TestCatalogList(t *testing.T) {
	isolate(t)
	out, err := execute(t, "catalog", "list")
	if err != nil {
		t.Fatal(err)
	}
	want := catalog.Default().Len()
	if !strings.Contains(out, "tracks in 5 categories") || !strings.Contains(out, "Title") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, strconv.Itoa(want)+" tracks") {
		t.Errorf("want %d tracks in %q", want, out)
	}
}

func TestCatalogListFiltersCategory(t *testing.T) {
	isolate(t)
	out, err := execute(t, "catalog", "list", "--category", "Sad")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, string(mood.Happy)) {
		t.Errorf("happy tracks listed in sad filter: %q", out)
	}

	if _, err := execute(t, "catalog", "list", "--category", "angry"); err == nil {
		t.Error("unknown category should fail")
	}
}

func TestCatalogValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")

	var doc strings.Builder
	doc.WriteString("tracks:\n")
	for _, c := range mood.Categories() {
		doc.WriteString("  - {title: t-" + string(c) + ", artist: a, asset: x.mp3, category: " + string(c) + "}\n")
	}
	if err := os.WriteFile(good, []byte(doc.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("tracks:\n  - {title: only, asset: x.mp3, category: happy}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "catalog", "validate", good)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ok, 5 tracks") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "catalog", "validate", bad); err == nil {
		t.Error("catalog missing categories should fail")
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"A", "B", "1", "2", "3"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("no headers should render nothing")
	}
}

func TestOpenSinkRejectsUnknown(t *testing.T) {
	if _, err := openSink(config.Playback{Sink: "alsa"}); err == nil {
		t.Error("expected error")
	}
	sink, err := openSink(config.Playback{Sink: "sim"})
	if err != nil {
		t.Fatal(err)
	}
	sink.Close()
}

func TestPlaybackConfigKeepsZeroVolume(t *testing.T) {
	for _, v := range []float64{0, 0.25, 1} {
		pc := playbackConfig(config.Playback{Volume: v})
		if pc.Volume == nil || *pc.Volume != v {
			t.Errorf("playbackConfig(volume=%v).Volume = %v", v, pc.Volume)
		}
	}
}

func TestAppDemoDrivesPlayback(t *testing.T) {
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Web.Enabled = false

	a, err := newApp(&cfg, catalog.Default(), playback.NewSimSink(playback.SimConfig{Duration: time.Minute}))
	if err != nil {
		t.Fatal(err)
	}
	if a.frames() != nil {
		t.Error("no dashboard should mean no frame sink")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.session.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer a.session.Close()

	demo := sampler.NewDemo(sampler.DemoConfig{Interval: 10 * time.Millisecond, Auto: true, Seed: 7})
	if err := a.session.StartSampling(demo, "demo"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := a.session.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		if snap.State == playback.Playing && snap.Track != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("demo never started playback")
}

func TestAppWithDashboard(t *testing.T) {
	cfg := config.Default()
	cfg.StateDir = t.TempDir()

	a, err := newApp(&cfg, catalog.Default(), playback.NewSimSink(playback.SimConfig{}))
	if err != nil {
		t.Fatal(err)
	}
	defer a.session.Close()
	if a.server == nil || a.frames() == nil {
		t.Fatal("dashboard should be wired")
	}
}
