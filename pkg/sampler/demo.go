package sampler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/teslashibe/moodbox/internal/log"
	"github.com/teslashibe/moodbox/pkg/mood"
)

// ErrNotRunning is returned by Demo.Manual when the demo is not running.
var ErrNotRunning = errors.New("sampler: demo not running")

// ErrDemoQueueFull is returned by Demo.Manual when manual events arrive
// faster than the demo drains them.
var ErrDemoQueueFull = errors.New("sampler: demo queue full")

// DefaultDemoInterval is the auto-cycle period.
const DefaultDemoInterval = 3 * time.Second

// DemoConfig configures a Demo source.
type DemoConfig struct {
	Interval time.Duration
	Auto     bool
	Seed     uint64 // 0 seeds from the clock
}

// Demo fabricates mood events without a camera. In auto mode it emits a
// random category every Interval with confidence in [0.6, 1.0). Manual
// emits a chosen category with confidence in [0.7, 1.0).
type Demo struct {
	interval time.Duration

	mu      sync.Mutex
	rng     *rand.Rand
	auto    bool
	running bool
	manual  chan mood.Category
}

// NewDemo creates a demo source.
func NewDemo(cfg DemoConfig) *Demo {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDemoInterval
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Demo{
		interval: cfg.Interval,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		auto:     cfg.Auto,
		manual:   make(chan mood.Category, 8),
	}
}

// Run emits demo events until ctx is cancelled.
func (d *Demo) Run(ctx context.Context, emit func(mood.Event)) error {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if !d.Auto() {
				continue
			}
			cat, conf := d.draw(mood.Categories(), 0.6)
			d.emit(emit, cat, conf, "demo")

		case cat := <-d.manual:
			_, conf := d.draw(nil, 0.7)
			d.emit(emit, cat, conf, "manual")
		}
	}
}

func (d *Demo) emit(emit func(mood.Event), cat mood.Category, conf float64, source string) {
	ev, err := mood.NewEvent(cat, conf, source)
	if err != nil {
		log.Warn("demo event rejected", "error", err)
		return
	}
	emit(ev)
}

// draw picks a category from cats (if any) and a confidence in [floor, 1).
func (d *Demo) draw(cats []mood.Category, floor float64) (mood.Category, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var cat mood.Category
	if len(cats) > 0 {
		cat = cats[d.rng.IntN(len(cats))]
	}
	return cat, floor + d.rng.Float64()*(1-floor)
}

// Manual queues an event for cat.
func (d *Demo) Manual(cat mood.Category) error {
	if !cat.Valid() {
		return mood.ErrUnknownCategory
	}
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case d.manual <- cat:
		return nil
	default:
		return ErrDemoQueueFull
	}
}

// SetAuto switches auto mode.
func (d *Demo) SetAuto(on bool) {
	d.mu.Lock()
	d.auto = on
	d.mu.Unlock()
}

// Auto reports whether auto mode is on.
func (d *Demo) Auto() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.auto
}
