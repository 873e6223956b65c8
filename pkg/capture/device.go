// Package capture abstracts a single high-speed camera plus strobe into a
// device producing timestamped frames on demand.
package capture

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Capture when no frame arrives within the
// requested window.
var ErrTimeout = errors.New("capture: frame timeout")

// Frame is one captured image, JPEG-encoded.
type Frame struct {
	Data       []byte
	Seq        uint64
	CapturedAt time.Time
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool { return len(f.Data) == 0 }

// Device is the camera + strobe abstraction the coordination layer drives.
// Arm must be called before Capture; a failed Arm aborts the cycle but not
// the process. FireStrobe emits pulses pulses spaced interval apart and
// must return promptly — the physical pulse train runs on the hardware.
type Device interface {
	Arm() error
	Disarm() error
	Capture(ctx context.Context, timeout time.Duration) (Frame, error)
	FireStrobe(pulses int, interval time.Duration) error
	Close() error
}

// StrobePulser drives the physical strobe output. The GPIO implementation
// lives with the hardware drivers; tests and bench rigs install their own.
type StrobePulser func(pulses int, interval time.Duration) error
