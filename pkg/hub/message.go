// Package hub fans messages out to websocket clients. One goroutine owns the
// client set; slow clients are dropped rather than allowed to stall others.
package hub

import "encoding/json"

// MessageType indicates the websocket frame type.
type MessageType int

const (
	JSONMessage MessageType = iota
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte
}

// Envelope is the JSON shape sent on typed channels.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data such as a JPEG frame.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// NewEnvelope encodes {"type": kind, "data": v}.
func NewEnvelope(kind string, v any) (Message, error) {
	data, err := json.Marshal(Envelope{Type: kind, Data: v})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
