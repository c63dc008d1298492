package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Reserved frame types.
const (
	TypePing = "ping"
	TypePong = "pong"
)

// ErrMalformedFrame is returned for payloads that are not a JSON object
// with a non-empty "type" field.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is a decoded inbound frame. Raw holds the complete original bytes.
type Frame struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// Reserved reports whether the frame is consumed by the link itself.
func (f Frame) Reserved() bool {
	return f.Type == TypePing || f.Type == TypePong
}

// Decode unmarshals v from the frame's raw bytes.
func (f Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// Ping is a liveness probe.
type Ping struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// Pong answers a Ping with the same ID.
type Pong struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// envelope is used for fast type extraction. Other fields are left to the
// consumer so application frames keep whatever shape they have.
type envelope struct {
	Type *string `json:"type"`
}

type probeEnvelope struct {
	ID string `json:"id"`
}

// Parse decodes the envelope of an inbound frame.
func Parse(data []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Frame{}, fmt.Errorf("%w: not a JSON object", ErrMalformedFrame)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == nil || *env.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Frame{Type: *env.Type, Raw: raw}, nil
}

// ProbeID returns the "id" of a ping or pong frame.
func ProbeID(f Frame) (string, error) {
	var env probeEnvelope
	if err := json.Unmarshal(f.Raw, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env.ID, nil
}

// NewPing builds a ping frame.
func NewPing(id string, at time.Time) Ping {
	return Ping{Type: TypePing, ID: id, Timestamp: at.UnixMilli()}
}

// NewPong builds a pong frame answering id.
func NewPong(id string) Pong {
	return Pong{Type: TypePong, ID: id}
}

// Encode marshals an outbound payload. Byte slices and json.RawMessage
// are sent as-is and must already hold a JSON frame.
func Encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil payload", ErrMalformedFrame)
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	case string:
		return []byte(p), nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return data, nil
}
