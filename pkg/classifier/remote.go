package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/moodbox/internal/log"
)

// remoteResponse is the engine's reply to one binary JPEG message.
type remoteResponse struct {
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

// Remote talks to an external expression engine over a websocket. Each
// request is one binary JPEG frame; each reply is a JSON remoteResponse.
type Remote struct {
	config RemoteConfig
	dialer websocket.Dialer

	mu     sync.Mutex // Serialises request/reply pairs
	conn   *websocket.Conn
	closed bool
}

// NewRemote dials the engine. A failed dial yields ErrInferenceUnavailable.
func NewRemote(ctx context.Context, cfg RemoteConfig) (*Remote, error) {
	r := &Remote{
		config: cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
	if err := r.dial(ctx); err != nil {
		return nil, err
	}
	log.Info("remote classifier connected", "url", cfg.URL)
	return r, nil
}

func (r *Remote) dial(ctx context.Context) error {
	conn, _, err := r.dialer.DialContext(ctx, r.config.URL, nil)
	if err != nil {
		return unavailable("remote", fmt.Errorf("dial %s: %w", r.config.URL, err))
	}
	r.conn = conn
	return nil
}

// Infer implements Classifier. A broken connection is redialled once; if
// that fails the engine is reported unavailable.
func (r *Remote) Infer(ctx context.Context, frame Frame) (*Detection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	if r.conn == nil {
		if err := r.dial(ctx); err != nil {
			return nil, err
		}
		log.Info("remote classifier reconnected", "url", r.config.URL)
	}

	resp, err := r.roundTrip(ctx, frame.JPEG)
	if err != nil {
		r.conn.Close()
		r.conn = nil
		return nil, WrapError("remote", err)
	}
	if resp.Error != "" {
		return nil, WrapError("remote", fmt.Errorf("engine: %s", resp.Error))
	}

	primary := SelectPrimary(resp.Detections)
	if primary == nil {
		return nil, nil
	}
	d := *primary
	return &d, nil
}

func (r *Remote) roundTrip(ctx context.Context, jpeg []byte) (*remoteResponse, error) {
	deadline := time.Now().Add(r.config.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r.conn.SetWriteDeadline(deadline)
	if err := r.conn.WriteMessage(websocket.BinaryMessage, jpeg); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	r.conn.SetReadDeadline(deadline)
	_, msg, err := r.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}

	var resp remoteResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &resp, nil
}

// Close closes the connection.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.conn == nil {
		return nil
	}
	r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return r.conn.Close()
}
