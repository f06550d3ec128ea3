package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/moodbox/internal/config"
	"github.com/teslashibe/moodbox/internal/log"
	"github.com/teslashibe/moodbox/pkg/sampler"
)

type demoOptions struct {
	interval time.Duration
	manual   bool
	seed     uint64
	sink     string
}

func newDemoCommand(ctx *commandContext) *cobra.Command {
	var opts demoOptions
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run without a camera, using generated or dashboard-injected moods",
		Long: "Demo mode replaces the camera and classifier with a generator that emits a random mood " +
			"every interval. With --manual only moods chosen on the dashboard are played.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.interval, "interval", sampler.DefaultDemoInterval, "Time between generated moods")
	cmd.Flags().BoolVar(&opts.manual, "manual", false, "Only play moods injected from the dashboard")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Random seed (0 uses the clock)")
	cmd.Flags().StringVar(&opts.sink, "sink", "sim", "Audio sink: sim or gst")
	return cmd
}

func runDemo(ctx context.Context, cfg *config.Config, opts demoOptions) error {
	cat, err := loadCatalog(ctx, cfg.Catalog)
	if err != nil {
		return err
	}

	pb := cfg.Playback
	pb.Sink = opts.sink
	sink, err := openSink(pb)
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

	demo := sampler.NewDemo(sampler.DemoConfig{
		Interval: opts.interval,
		Auto:     !opts.manual,
		Seed:     opts.seed,
	})
	if err := a.session.StartSampling(demo, "demo"); err != nil {
		a.session.Close()
		return err
	}
	log.Info("demo running", "interval", opts.interval, "auto", !opts.manual, "sink", opts.sink)

	err = a.serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
