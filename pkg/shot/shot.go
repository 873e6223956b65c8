// Package shot holds the domain model shared by detection, analysis and
// coordination: ball observations, calibration, and the final shot result.
package shot

import (
	"fmt"
	"math"
	"time"
)

// Observation is a single detected ball in one frame.
// Immutable once produced by a detector.
type Observation struct {
	X          float64   // Center x in pixels
	Y          float64   // Center y in pixels
	Radius     float64   // Radius in pixels
	Confidence float64   // Detection confidence (0-1)
	FrameID    string    // Source frame identifier
	CapturedAt time.Time // Frame capture timestamp
}

// Validate checks the observation invariants.
func (o Observation) Validate() error {
	if o.Radius <= 0 {
		return fmt.Errorf("observation radius must be positive, got %v", o.Radius)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("observation confidence must be in [0,1], got %v", o.Confidence)
	}
	return nil
}

// DistanceTo returns the pixel distance between two observation centers.
func (o Observation) DistanceTo(p Observation) float64 {
	return math.Hypot(o.X-p.X, o.Y-p.Y)
}

// Overlaps reports whether p lies within one radius of o.
// Used to de-duplicate multi-exposure candidates.
func (o Observation) Overlaps(p Observation) bool {
	return o.DistanceTo(p) < o.Radius
}

// Kind classifies a shot result.
type Kind string

const (
	KindValid                 Kind = "valid"
	KindSpinUnavailable       Kind = "spin_unavailable"
	KindNoBallAtAddress       Kind = "no_ball_at_address"
	KindInsufficientExposures Kind = "insufficient_exposures"
	KindPeerTimeout           Kind = "peer_timeout"
	KindMalformedPayload      Kind = "malformed_payload"
	KindImplausibleResult     Kind = "implausible_result"
	KindCaptureFailure        Kind = "capture_failure"
	KindDetectionFailure      Kind = "detection_failure"
)

// OK reports whether the result carries usable launch numbers.
// Spin may still be absent (KindSpinUnavailable).
func (k Kind) OK() bool {
	return k == KindValid || k == KindSpinUnavailable
}

// Result is the outcome of one shot cycle. Computed once, immutable,
// published to the reporting sink and echoed to the peer node.
type Result struct {
	SpeedMPS       float64   `json:"speed_mps"`
	LaunchAngleDeg float64   `json:"launch_angle_deg"`
	SideAngleDeg   float64   `json:"side_angle_deg"` // Negative is left of target line
	BackSpinRPM    float64   `json:"back_spin_rpm"`
	SideSpinRPM    float64   `json:"side_spin_rpm"` // Negative is left (counter-clockwise from above)
	SpinAxisDeg    float64   `json:"spin_axis_deg"`
	CarryMeters    float64   `json:"carry_meters"`
	Kind           Kind      `json:"kind"`
	Message        string    `json:"message,omitempty"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

// SpeedMPH returns the ball speed in miles per hour.
func (r Result) SpeedMPH() float64 {
	return r.SpeedMPS * 2.23694
}

// CarryYards returns the carry estimate in yards.
func (r Result) CarryYards() float64 {
	return r.CarryMeters * (3.281 / 3.0)
}

// Failure builds a Result classifying a failed cycle.
func Failure(kind Kind, correlationID, message string) Result {
	return Result{
		Kind:          kind,
		Message:       message,
		CorrelationID: correlationID,
		CapturedAt:    time.Now(),
	}
}

