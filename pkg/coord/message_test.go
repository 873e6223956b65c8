package coord

import (
	"errors"
	"testing"
	"time"

	"github.com/fairwaylab/strobeshot/pkg/capture"
	"github.com/fairwaylab/strobeshot/pkg/shot"
)

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(TypeCaptureRequest, "cid-42", CaptureRequest{
		ExposureCount: 5,
		IntervalUS:    2000,
	})
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if msg.Timestamp == 0 {
		t.Error("NewMessage() timestamp not set")
	}

	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeCaptureRequest {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeCaptureRequest)
	}
	if parsed.CorrelationID != "cid-42" {
		t.Errorf("CorrelationID = %q, want %q", parsed.CorrelationID, "cid-42")
	}

	var req CaptureRequest
	if err := parsed.ParseData(&req); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if req.ExposureCount != 5 || req.IntervalUS != 2000 {
		t.Errorf("CaptureRequest = %+v, want {5 2000}", req)
	}
}

func TestParseMessageMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("{{{")},
		{"missing type", []byte(`{"cid":"x"}`)},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage(tt.data)
			if !errors.Is(err, shot.ErrMalformedPayload) {
				t.Errorf("ParseMessage() error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestParseDataEmptyPayload(t *testing.T) {
	m := &Message{Type: TypeCaptureRequest}
	var req CaptureRequest
	if err := m.ParseData(&req); !errors.Is(err, shot.ErrMalformedPayload) {
		t.Errorf("ParseData() error = %v, want ErrMalformedPayload", err)
	}
}

func TestImagePayloadRoundTrip(t *testing.T) {
	at := time.Now().Truncate(time.Microsecond)
	f := capture.Frame{Data: []byte("jpeg bytes"), Seq: 7, CapturedAt: at}

	p := EncodeImage(f)
	if p.Format != "jpeg" {
		t.Errorf("Format = %q, want jpeg", p.Format)
	}

	got, err := p.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got.Data) != "jpeg bytes" {
		t.Errorf("Data = %q, want %q", got.Data, "jpeg bytes")
	}
	if got.Seq != 7 {
		t.Errorf("Seq = %d, want 7", got.Seq)
	}
	if !got.CapturedAt.Equal(at) {
		t.Errorf("CapturedAt = %v, want %v", got.CapturedAt, at)
	}
}

func TestImagePayloadDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		p    ImagePayload
	}{
		{"bad base64", ImagePayload{Format: "jpeg", Data: "%%%"}},
		{"empty data", ImagePayload{Format: "jpeg", Data: ""}},
		{"unsupported format", ImagePayload{Format: "png", Data: "aGk="}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.Decode()
			if !errors.Is(err, shot.ErrMalformedPayload) {
				t.Errorf("Decode() error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}
