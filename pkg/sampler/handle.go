package sampler

import (
	"context"
	"io"
	"sync"

	"github.com/teslashibe/moodbox/pkg/mood"
)

// Source produces mood events. Both the camera Sampler and Demo satisfy it.
type Source interface {
	Run(ctx context.Context, emit func(mood.Event)) error
}

// Handle controls one running Source.
type Handle struct {
	src    Source
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	once   sync.Once
}

// Start runs src in a goroutine. When it finishes for any reason, src is
// closed if it implements io.Closer.
func Start(ctx context.Context, src Source, emit func(mood.Event)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		src:    src,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		h.err = src.Run(ctx, emit)
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
	}()
	return h
}

// Stop cancels the source and waits for it to release its resources.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Wait blocks until the source finishes and returns its terminal error,
// nil when stopped.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Done is closed when the source has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Source returns the running source.
func (h *Handle) Source() Source {
	return h.src
}

// Runner keeps at most one Handle alive. Current never waits on a handle
// that is being stopped.
type Runner struct {
	lifecycle sync.Mutex // serialises Start and Stop

	mu      sync.Mutex
	current *Handle
}

// Start stops the current handle, if any, then starts src.
func (r *Runner) Start(ctx context.Context, src Source, emit func(mood.Event)) *Handle {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.stopCurrent()
	h := Start(ctx, src, emit)
	r.mu.Lock()
	r.current = h
	r.mu.Unlock()
	return h
}

// Stop stops the current handle.
func (r *Runner) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.stopCurrent()
}

func (r *Runner) stopCurrent() {
	r.mu.Lock()
	prev := r.current
	r.current = nil
	r.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
}

// Current returns the running handle or nil.
func (r *Runner) Current() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
