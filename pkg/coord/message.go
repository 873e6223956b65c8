// Package coord implements the two-node shot coordination protocol: typed
// messages over an asynchronous channel, correlation-id request tracking,
// and the per-node state machines.
package coord

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fairwaylab/strobeshot/pkg/capture"
	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// Type identifies a coordination message.
type Type string

const (
	// TypeCaptureRequest asks the peer to capture the strobe-lit flight image.
	TypeCaptureRequest Type = "capture_request"
	// TypeCaptureReady acknowledges a capture request before the image follows.
	TypeCaptureReady Type = "capture_ready"
	// TypeImagePayload carries a captured frame back to the requester.
	TypeImagePayload Type = "image"
	// TypeResult echoes the final shot result to the peer for logging.
	TypeResult Type = "result"
	// TypeShutdown tells the peer to release resources and exit.
	TypeShutdown Type = "shutdown"
	// TypeControl carries session directives (arm, disarm).
	TypeControl Type = "control"
)

// Message is the wire envelope. CorrelationID ties a request to its reply;
// a message is consumed by its handler and never retained.
type Message struct {
	Type          Type            `json:"type"`
	CorrelationID string          `json:"cid,omitempty"`
	Timestamp     int64           `json:"ts,omitempty"` // Unix milliseconds
	Data          json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(t Type, correlationID string, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
	}
	return &Message{
		Type:          t,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UnixMilli(),
		Data:          raw,
	}, nil
}

// ParseMessage decodes a wire message.
func ParseMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", shot.ErrMalformedPayload, err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("%w: missing message type", shot.ErrMalformedPayload)
	}
	return &m, nil
}

// ParseData unmarshals the payload into v.
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return fmt.Errorf("%w: empty %s payload", shot.ErrMalformedPayload, m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", shot.ErrMalformedPayload, m.Type, err)
	}
	return nil
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// CaptureRequest asks the peer for a strobe-window capture.
type CaptureRequest struct {
	ExposureCount int   `json:"exposures"`
	IntervalUS    int64 `json:"interval_us"`
}

// ImagePayload carries one captured frame, base64-encoded JPEG.
type ImagePayload struct {
	Format     string `json:"format"` // "jpeg"
	Data       string `json:"data"`
	Seq        uint64 `json:"seq,omitempty"`
	CapturedAt int64  `json:"captured_at"` // Unix microseconds
}

// EncodeImage wraps a captured frame for the wire.
func EncodeImage(f capture.Frame) ImagePayload {
	return ImagePayload{
		Format:     "jpeg",
		Data:       base64.StdEncoding.EncodeToString(f.Data),
		Seq:        f.Seq,
		CapturedAt: f.CapturedAt.UnixMicro(),
	}
}

// Decode reconstructs the captured frame.
func (p ImagePayload) Decode() (capture.Frame, error) {
	if p.Format != "" && p.Format != "jpeg" {
		return capture.Frame{}, fmt.Errorf("%w: unsupported image format %q", shot.ErrMalformedPayload, p.Format)
	}
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return capture.Frame{}, fmt.Errorf("%w: image data: %v", shot.ErrMalformedPayload, err)
	}
	if len(data) == 0 {
		return capture.Frame{}, fmt.Errorf("%w: empty image payload", shot.ErrMalformedPayload)
	}
	return capture.Frame{
		Data:       data,
		Seq:        p.Seq,
		CapturedAt: time.UnixMicro(p.CapturedAt),
	}, nil
}

// ResultReport is the structured numeric result echoed to the peer.
type ResultReport struct {
	shot.Result
}

// Control carries a session directive.
type Control struct {
	Command string `json:"command"` // "arm" or "disarm"
}

// Control commands.
const (
	CommandArm    = "arm"
	CommandDisarm = "disarm"
)
