package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Webcam is a Device backed by a V4L2/UVC camera through OpenCV. It stands
// in for the high-speed global-shutter camera on bench rigs where strobe
// timing does not matter; the strobe output is delegated to an injected
// pulser (GPIO on the real unit, a no-op on the bench).
type Webcam struct {
	mu     sync.Mutex
	cam    *gocv.VideoCapture
	pulser StrobePulser
	seq    uint64
	armed  bool
}

// OpenWebcam opens camera deviceID. pulser may be nil, in which case
// FireStrobe is a no-op.
func OpenWebcam(deviceID int, pulser StrobePulser) (*Webcam, error) {
	cam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", deviceID, err)
	}
	return &Webcam{cam: cam, pulser: pulser}, nil
}

func (w *Webcam) Arm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cam == nil {
		return fmt.Errorf("camera closed")
	}
	w.armed = true
	return nil
}

func (w *Webcam) Disarm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
	return nil
}

func (w *Webcam) Capture(ctx context.Context, timeout time.Duration) (Frame, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cam == nil {
		return Frame{}, fmt.Errorf("camera closed")
	}

	img := gocv.NewMat()
	defer img.Close()

	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		default:
		}
		if w.cam.Read(&img) && !img.Empty() {
			break
		}
		if time.Now().After(deadline) {
			return Frame{}, ErrTimeout
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	w.seq++
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return Frame{Data: data, Seq: w.seq, CapturedAt: time.Now()}, nil
}

func (w *Webcam) FireStrobe(pulses int, interval time.Duration) error {
	w.mu.Lock()
	pulser := w.pulser
	w.mu.Unlock()
	if pulser == nil {
		return nil
	}
	return pulser(pulses, interval)
}

func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cam == nil {
		return nil
	}
	err := w.cam.Close()
	w.cam = nil
	return err
}
