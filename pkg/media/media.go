// Package media provides live frame sources for the detection sampler.
//
// A Source hands out the most recent JPEG frame on demand and signals its
// end through Done. Once Done is closed the source never produces frames
// again; Err explains why.
package media

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrMediaUnavailable is returned when a source cannot be opened or has
	// ended or been revoked. It is fatal to sampling.
	ErrMediaUnavailable = errors.New("media: source unavailable")

	// ErrNoFrame is returned when no frame has arrived yet.
	ErrNoFrame = errors.New("media: no frame available")
)

// Source is a live frame-producing handle.
type Source interface {
	// CaptureJPEG returns the latest frame.
	CaptureJPEG() ([]byte, error)

	// Done is closed when the source ends or is revoked.
	Done() <-chan struct{}

	// Err returns why the source ended, wrapping ErrMediaUnavailable.
	// It returns nil while the source is live.
	Err() error

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// terminal tracks the one-shot end of a source.
type terminal struct {
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

func newTerminal() terminal {
	return terminal{done: make(chan struct{})}
}

func (t *terminal) end(reason error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = fmt.Errorf("%w: %v", ErrMediaUnavailable, reason)
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *terminal) Done() <-chan struct{} {
	return t.done
}

func (t *terminal) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// latest holds the newest frame behind a lock.
type latest struct {
	mu    sync.RWMutex
	frame []byte
}

func (l *latest) set(frame []byte) {
	l.mu.Lock()
	l.frame = frame
	l.mu.Unlock()
}

func (l *latest) get() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.frame == nil {
		return nil, ErrNoFrame
	}
	out := make([]byte, len(l.frame))
	copy(out, l.frame)
	return out, nil
}
