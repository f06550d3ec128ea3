package classifier

import (
	"context"
	"sync"
	"time"
)

// Mock implements Classifier for testing. Responses are served from Script
// in order; once exhausted, InferFunc (if set) is used, otherwise no face.
type Mock struct {
	// Script is consumed one entry per Infer call.
	Script []MockResponse

	// InferFunc is called after the script runs out.
	InferFunc func(ctx context.Context, frame Frame) (*Detection, error)

	// Delay simulates a slow engine.
	Delay time.Duration

	mu     sync.Mutex
	calls  []time.Time
	closed bool
}

// MockResponse is one scripted Infer result.
type MockResponse struct {
	Detection *Detection
	Err       error
}

// NewMock creates a mock that replays the given score distributions, one
// per call. A nil entry means "no face".
func NewMock(dists ...map[string]float64) *Mock {
	m := &Mock{}
	for _, scores := range dists {
		if scores == nil {
			m.Script = append(m.Script, MockResponse{})
			continue
		}
		m.Script = append(m.Script, MockResponse{Detection: &Detection{
			Box:    BoundingBox{X: 100, Y: 80, Width: 120, Height: 120},
			Scores: scores,
		}})
	}
	return m
}

// WithError returns a mock whose every call fails with err.
func WithError(err error) *Mock {
	return &Mock{
		InferFunc: func(ctx context.Context, frame Frame) (*Detection, error) {
			return nil, err
		},
	}
}

// Infer implements Classifier.
func (m *Mock) Infer(ctx context.Context, frame Frame) (*Detection, error) {
	m.mu.Lock()
	m.calls = append(m.calls, time.Now())
	var (
		next      *MockResponse
		inferFunc = m.InferFunc
		delay     = m.Delay
	)
	if len(m.Script) > 0 {
		next = &m.Script[0]
		m.Script = m.Script[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if next != nil {
		if next.Detection == nil {
			return nil, next.Err
		}
		d := *next.Detection
		return &d, next.Err
	}
	if inferFunc != nil {
		return inferFunc(ctx, frame)
	}
	return nil, nil
}

// Close implements Classifier.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CallCount returns how many times Infer ran.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
