package coord

import (
	"fmt"
	"sync"

	"github.com/fairwaylab/strobeshot/pkg/capture"
	"github.com/fairwaylab/strobeshot/pkg/detect"
	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// WatchEvent is a transition observed by the ball watcher.
type WatchEvent int

const (
	// EventNone: nothing changed.
	EventNone WatchEvent = iota
	// EventBallPlaced: a ball appeared at address.
	EventBallPlaced
	// EventBallSteady: the ball held still long enough to arm the trigger.
	EventBallSteady
	// EventDeparted: the steady ball left its address position.
	EventDeparted
)

// Watcher detects ball departure in the local frame stream. It requires
// the address ball to be stationary for a run of consecutive frames before
// the departure trigger arms, so club waggle and ball placement do not fire
// the strobe. Observe runs on the trigger loop while Reset can arrive from
// the control path, so tracking state is guarded.
type Watcher struct {
	det          detect.Detector
	cal          *shot.Calibration
	stableFrames int

	mu      sync.Mutex
	last    *shot.Observation
	still   int
	steady  bool
	address capture.Frame
}

// NewWatcher creates a watcher. stableFrames is the consecutive still
// frames required before arming.
func NewWatcher(det detect.Detector, cal *shot.Calibration, stableFrames int) *Watcher {
	if stableFrames < 1 {
		stableFrames = 1
	}
	return &Watcher{det: det, cal: cal, stableFrames: stableFrames}
}

// Observe feeds one frame through the watcher and reports the transition.
func (w *Watcher) Observe(f capture.Frame) (WatchEvent, error) {
	obs, err := w.det.Detect(f.Data, 1)
	if err != nil {
		return EventNone, fmt.Errorf("%w: watch frame: %v", shot.ErrDetectionBackend, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	stillThresh := w.cal.ExpectedRadiusPx / 2
	departThresh := 2 * w.cal.ExpectedRadiusPx

	if len(obs) == 0 {
		if w.steady {
			// Steady ball gone: it left between frames.
			w.reset()
			return EventDeparted, nil
		}
		w.reset()
		return EventNone, nil
	}

	o := obs[0]
	if w.last == nil {
		w.last = &o
		w.still = 1
		return EventBallPlaced, nil
	}

	d := o.DistanceTo(*w.last)
	switch {
	case d <= stillThresh:
		w.last = &o
		w.still++
		w.address = f
		if !w.steady && w.still >= w.stableFrames {
			w.steady = true
			return EventBallSteady, nil
		}
		return EventNone, nil

	case w.steady && d >= departThresh:
		w.reset()
		return EventDeparted, nil

	default:
		// Ball nudged: restart stabilization from here.
		w.last = &o
		w.still = 1
		w.steady = false
		return EventNone, nil
	}
}

// AddressFrame returns the most recent steady address frame.
func (w *Watcher) AddressFrame() capture.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.address
}

// Steady reports whether the departure trigger is armed.
func (w *Watcher) Steady() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steady
}

// Reset clears tracking state for the next cycle.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

func (w *Watcher) reset() {
	w.last = nil
	w.still = 0
	w.steady = false
}
