package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/moodbox/internal/log"
)

// WebRTCConfig configures a receive-only stream from a GStreamer webrtcsink
// signalling server.
type WebRTCConfig struct {
	SignallingURL  string
	ProducerName   string // matched against the producer's meta "name"; empty takes the first
	ConnectTimeout time.Duration
}

// signalMessage covers every message the signalling server sends or accepts.
type signalMessage struct {
	Type      string          `json:"type"`
	PeerID    string          `json:"peerId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Producers []producer      `json:"producers,omitempty"`
	SDP       *sdpPayload     `json:"sdp,omitempty"`
	ICE       *icePayload     `json:"ice,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// WebRTC receives an H264 video track and decodes it to JPEG frames.
type WebRTC struct {
	terminal
	frame latest

	cfg       WebRTCConfig
	ws        *websocket.Conn
	wsMu      sync.Mutex
	pc        *webrtc.PeerConnection
	decoder   *h264Decoder
	cancel    context.CancelFunc
	sessionMu sync.Mutex
	sessionID string
	closeOnce sync.Once
}

// DialWebRTC connects to the signalling server, negotiates a session and
// waits for the first decoded frame.
func DialWebRTC(ctx context.Context, cfg WebRTCConfig) (*WebRTC, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &WebRTC{
		terminal: newTerminal(),
		cfg:      cfg,
		cancel:   cancel,
	}

	if err := w.connect(ctx); err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	wait, stop := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer stop()
	for {
		if _, err := w.frame.get(); err == nil {
			break
		}
		select {
		case <-w.done:
			err := w.Err()
			w.Close()
			return nil, err
		case <-wait.Done():
			w.Close()
			return nil, fmt.Errorf("%w: no video within %s", ErrMediaUnavailable, cfg.ConnectTimeout)
		case <-time.After(50 * time.Millisecond):
		}
	}

	log.Info("webrtc video connected", "url", cfg.SignallingURL)
	return w, nil
}

func (w *WebRTC) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, w.cfg.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("signalling connect: %w", err)
	}
	w.ws = ws

	welcome, err := w.readSignal(10 * time.Second)
	if err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %q", welcome.Type)
	}

	producerID, err := w.findProducer()
	if err != nil {
		return err
	}

	decoder, err := startDecoder(ctx, w.frame.set)
	if err != nil {
		return err
	}
	w.decoder = decoder

	if err := w.createPeerConnection(); err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}
	if err := w.send(signalMessage{Type: "startSession", PeerID: producerID}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	go w.handleSignalling()
	go func() {
		select {
		case <-decoder.Done():
			w.end(errors.New("decoder exited"))
		case <-w.done:
		}
	}()
	return nil
}

func (w *WebRTC) readSignal(timeout time.Duration) (signalMessage, error) {
	var msg signalMessage
	w.ws.SetReadDeadline(time.Now().Add(timeout))
	defer w.ws.SetReadDeadline(time.Time{})
	if err := w.ws.ReadJSON(&msg); err != nil {
		return msg, err
	}
	return msg, nil
}

func (w *WebRTC) send(msg signalMessage) error {
	w.wsMu.Lock()
	defer w.wsMu.Unlock()
	return w.ws.WriteJSON(msg)
}

func (w *WebRTC) findProducer() (string, error) {
	if err := w.send(signalMessage{Type: "list"}); err != nil {
		return "", fmt.Errorf("list producers: %w", err)
	}
	resp, err := w.readSignal(5 * time.Second)
	if err != nil {
		return "", fmt.Errorf("list producers: %w", err)
	}
	for _, p := range resp.Producers {
		if w.cfg.ProducerName == "" || p.Meta["name"] == w.cfg.ProducerName {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("producer %q not found among %d producers", w.cfg.ProducerName, len(resp.Producers))
}

func (w *WebRTC) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	w.pc = pc

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug("webrtc track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go w.readTrack(track)
		}
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		w.sessionMu.Lock()
		session := w.sessionID
		w.sessionMu.Unlock()
		if session == "" {
			return
		}
		cand := c.ToJSON()
		if err := w.send(signalMessage{
			Type:      "peer",
			SessionID: session,
			ICE: &icePayload{
				Candidate:     cand.Candidate,
				SDPMid:        cand.SDPMid,
				SDPMLineIndex: cand.SDPMLineIndex,
			},
		}); err != nil {
			log.Debug("send ice candidate failed", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("webrtc connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			w.end(fmt.Errorf("peer connection %s", state))
		}
	})
	return nil
}

func (w *WebRTC) handleSignalling() {
	for {
		var msg signalMessage
		if err := w.ws.ReadJSON(&msg); err != nil {
			w.end(fmt.Errorf("signalling: %w", err))
			return
		}

		switch msg.Type {
		case "sessionStarted":
			w.sessionMu.Lock()
			w.sessionID = msg.SessionID
			w.sessionMu.Unlock()
		case "peer":
			if err := w.handlePeer(msg); err != nil {
				log.Warn("webrtc negotiation failed", "error", err)
			}
		case "endSession":
			w.end(errors.New("producer ended session"))
			return
		case "error":
			log.Warn("signalling error", "details", string(msg.Details))
		}
	}
}

func (w *WebRTC) handlePeer(msg signalMessage) error {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		if err := w.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  msg.SDP.SDP,
		}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := w.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := w.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		return w.send(signalMessage{
			Type:      "peer",
			SessionID: msg.SessionID,
			SDP:       &sdpPayload{Type: answer.Type.String(), SDP: answer.SDP},
		})
	}

	if msg.ICE != nil {
		return w.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     msg.ICE.Candidate,
			SDPMid:        msg.ICE.SDPMid,
			SDPMLineIndex: msg.ICE.SDPMLineIndex,
		})
	}
	return nil
}

// readTrack depacketises RTP into Annex-B access units for the decoder.
func (w *WebRTC) readTrack(track *webrtc.TrackRemote) {
	depacketizer := &codecs.H264Packet{}
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			w.end(fmt.Errorf("video track: %w", err))
			return
		}
		nal, err := depacketizer.Unmarshal(packet.Payload)
		if err != nil || len(nal) == 0 {
			continue
		}
		if _, err := w.decoder.Write(nal); err != nil {
			w.end(fmt.Errorf("decoder write: %w", err))
			return
		}
	}
}

// CaptureJPEG implements Source.
func (w *WebRTC) CaptureJPEG() ([]byte, error) {
	select {
	case <-w.done:
		return nil, w.Err()
	default:
	}
	return w.frame.get()
}

// Close tears down the peer connection, signalling socket and decoder.
func (w *WebRTC) Close() error {
	w.closeOnce.Do(func() {
		w.end(errClosed)
		if w.pc != nil {
			w.pc.Close()
		}
		if w.ws != nil {
			w.ws.Close()
		}
		if w.decoder != nil {
			w.decoder.Close()
		}
		w.cancel()
	})
	return nil
}
