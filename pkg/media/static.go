package media

import (
	"errors"
	"sync"
)

// errClosed is the reason recorded when a source is closed by its owner.
var errClosed = errors.New("closed")

// Static serves frames from memory, cycling through them. It is used in
// tests and by the demo command.
type Static struct {
	terminal

	mu     sync.Mutex
	frames [][]byte
	next   int
}

// NewStatic creates a source that cycles through frames.
func NewStatic(frames ...[]byte) *Static {
	return &Static{
		terminal: newTerminal(),
		frames:   frames,
	}
}

// CaptureJPEG implements Source.
func (s *Static) CaptureJPEG() ([]byte, error) {
	select {
	case <-s.done:
		return nil, s.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, ErrNoFrame
	}
	frame := s.frames[s.next%len(s.frames)]
	s.next++
	return frame, nil
}

// Revoke ends the source as if the device were withdrawn.
func (s *Static) Revoke(reason error) {
	s.end(reason)
}

// Close implements Source.
func (s *Static) Close() error {
	s.end(errClosed)
	return nil
}
