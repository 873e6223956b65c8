package shot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Standard golf ball diameter in meters (1.68 inches).
const BallDiameterM = 0.04267

// Calibration describes the fixed camera and strobe geometry for a session.
// Loaded once at session start and shared read-only between the trigger and
// analysis paths; it is never mutated while a session is armed.
type Calibration struct {
	// FocalLengthPx is the camera focal length expressed in pixels.
	FocalLengthPx float64 `yaml:"focal_length_px"`

	// BallDiameterM overrides the standard ball diameter if set.
	BallDiameterM float64 `yaml:"ball_diameter_m"`

	// ExpectedRadiusPx is the expected ball radius at the reference
	// distance; MinRadiusPx/MaxRadiusPx bound the acceptance band.
	ExpectedRadiusPx float64 `yaml:"expected_radius_px"`
	MinRadiusPx      float64 `yaml:"min_radius_px"`
	MaxRadiusPx      float64 `yaml:"max_radius_px"`

	// CamTiltDeg is the downward tilt of the camera mount relative to the
	// target line; CamPanDeg the horizontal pan. The flight camera views
	// the launch window obliquely and these project pixel motion back
	// into launch coordinates.
	CamTiltDeg float64 `yaml:"cam_tilt_deg"`
	CamPanDeg  float64 `yaml:"cam_pan_deg"`

	// StrobeIntervalUS is the fixed pulse spacing of the strobe sequence
	// in microseconds.
	StrobeIntervalUS int64 `yaml:"strobe_interval_us"`

	// MaxBallSpeedMPS is the sanity ceiling for continuity pruning and
	// final plausibility checks. PGA tour drivers peak near 95 m/s.
	MaxBallSpeedMPS float64 `yaml:"max_ball_speed_mps"`
}

// DefaultCalibration returns the bench-rig geometry used when no
// calibration file is supplied.
func DefaultCalibration() *Calibration {
	return &Calibration{
		FocalLengthPx:    1450,
		BallDiameterM:    BallDiameterM,
		ExpectedRadiusPx: 14,
		MinRadiusPx:      6,
		MaxRadiusPx:      40,
		CamTiltDeg:       12,
		CamPanDeg:        0,
		StrobeIntervalUS: 2000,
		MaxBallSpeedMPS:  100,
	}
}

// LoadCalibration reads a calibration YAML file, filling unset fields from
// the defaults.
func LoadCalibration(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	cal := DefaultCalibration()
	if err := yaml.Unmarshal(data, cal); err != nil {
		return nil, fmt.Errorf("parse calibration: %w", err)
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return cal, nil
}

// Validate checks the calibration invariants.
func (c *Calibration) Validate() error {
	if c.FocalLengthPx <= 0 {
		return fmt.Errorf("calibration: focal length must be positive")
	}
	if c.ExpectedRadiusPx <= 0 || c.MinRadiusPx <= 0 || c.MaxRadiusPx < c.MinRadiusPx {
		return fmt.Errorf("calibration: invalid radius band [%v, %v] expected %v",
			c.MinRadiusPx, c.MaxRadiusPx, c.ExpectedRadiusPx)
	}
	if c.StrobeIntervalUS <= 0 {
		return fmt.Errorf("calibration: strobe interval must be positive")
	}
	if c.MaxBallSpeedMPS <= 0 {
		return fmt.Errorf("calibration: max ball speed must be positive")
	}
	return nil
}

// MetersPerPixel returns the world scale at the distance implied by an
// observed ball radius: the ball's known diameter spans 2*radius pixels.
func (c *Calibration) MetersPerPixel(radiusPx float64) float64 {
	d := c.BallDiameterM
	if d <= 0 {
		d = BallDiameterM
	}
	return d / (2 * radiusPx)
}

// Distance returns the camera-to-ball distance implied by an observed
// radius, via the pinhole model.
func (c *Calibration) Distance(radiusPx float64) float64 {
	d := c.BallDiameterM
	if d <= 0 {
		d = BallDiameterM
	}
	return c.FocalLengthPx * d / (2 * radiusPx)
}

// StrobeInterval returns the pulse spacing as a duration.
func (c *Calibration) StrobeInterval() time.Duration {
	return time.Duration(c.StrobeIntervalUS) * time.Microsecond
}

// MaxDisplacementPx returns the largest plausible pixel displacement of the
// ball between consecutive strobe pulses, given the speed ceiling. Used to
// reject discontinuous exposure candidates.
func (c *Calibration) MaxDisplacementPx(radiusPx float64) float64 {
	maxTravelM := c.MaxBallSpeedMPS * c.StrobeInterval().Seconds()
	return maxTravelM / c.MetersPerPixel(radiusPx)
}
