package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/moodbox/internal/config"
	"github.com/teslashibe/moodbox/internal/log"
	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/mood"
	"github.com/teslashibe/moodbox/pkg/playback"
	"github.com/teslashibe/moodbox/pkg/sampler"
	"github.com/teslashibe/moodbox/pkg/session"
	"github.com/teslashibe/moodbox/pkg/web"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var noWeb bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the camera and play music for the detected mood",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if noWeb {
				cfg.Web.Enabled = false
			}
			return runCamera(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&noWeb, "no-web", false, "Disable the dashboard")
	return cmd
}

// app bundles a session with its optional dashboard.
type app struct {
	session *session.Session
	server  *web.Server
}

// newApp builds the session and dashboard around sink. The dashboard
// observes the session and the session backs the dashboard.
func newApp(cfg *config.Config, cat *catalog.Catalog, sink playback.Sink) (*app, error) {
	a := &app{}
	logger := log.With("component", "app")

	obs := session.Observers{
		OnEmotionDetected: func(ev mood.Event) {
			logger.Info("mood detected", "category", ev.Category, "confidence", ev.Confidence, "source", ev.Source)
			if a.server != nil {
				a.server.PublishEmotion(ev)
			}
		},
		OnTrackChange: func(t catalog.Track) {
			logger.Info("now playing", "title", t.Title, "artist", t.Artist, "category", t.Category)
			if a.server != nil {
				a.server.PublishTrack(t)
			}
		},
		OnState: func(snap playback.Snapshot) {
			if a.server != nil {
				a.server.PublishState(snap)
			}
		},
		OnStatus: func(st session.Status) {
			if st.Kind == session.StatusFatal {
				logger.Error("sampling stopped", "message", st.Message, "error", st.Err)
			}
			if a.server != nil {
				a.server.PublishStatus(st)
			}
		},
		OnError: func(err error) {
			logger.Warn("playback problem", "error", err)
			if a.server != nil {
				a.server.PublishError(err)
			}
		},
	}

	sess, err := session.New(session.Config{
		StateDir: cfg.StateDir,
		Catalog:  cat,
		Sink:     sink,
		Playback: playbackConfig(cfg.Playback),
	}, obs)
	if err != nil {
		return nil, err
	}
	a.session = sess

	if cfg.Web.Enabled {
		a.server = web.NewServer(web.Config{Addr: cfg.Web.Addr, Static: cfg.Web.Static}, sess, cat)
	}
	return a, nil
}

// frames returns the dashboard's camera feed, or nil without a dashboard.
func (a *app) frames() sampler.OverlaySink {
	if a.server == nil {
		return nil
	}
	return a.server.SendCameraFrame
}

// serve runs until ctx is cancelled or the session or dashboard stops.
func (a *app) serve(ctx context.Context) error {
	defer a.session.Close()

	if a.server == nil {
		select {
		case <-ctx.Done():
		case <-a.session.Done():
		}
		return nil
	}

	errc := make(chan error, 1)
	go func() { errc <- a.server.Run(ctx) }()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	case <-a.session.Done():
		<-errc
		return nil
	}
}

func runCamera(ctx context.Context, cfg *config.Config) error {
	cat, err := loadCatalog(ctx, cfg.Catalog)
	if err != nil {
		return err
	}
	log.Info("catalog loaded", "tracks", cat.Len())

	sink, err := openSink(cfg.Playback)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, cat, sink)
	if err != nil {
		sink.Close()
		return err
	}
	if err := a.session.Start(ctx); err != nil {
		sink.Close()
		return err
	}

	clf, err := openClassifier(ctx, cfg.Classifier)
	if err != nil {
		a.session.Close()
		return err
	}
	defer clf.Close()

	smp, err := newCameraSampler(ctx, cfg, clf, a.frames())
	if err != nil {
		a.session.Close()
		return err
	}
	if err := a.session.StartSampling(smp, cfg.Media.Kind); err != nil {
		smp.Close()
		a.session.Close()
		return err
	}

	err = a.serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
