package analyze

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// Vec3 is a velocity vector in launch coordinates:
// X along the target line (away from the player), Y up, Z lateral
// (positive right of the target line).
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the vector magnitude.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// VelocityVectors converts pixel displacements between consecutive kept
// exposures into world-space velocity vectors.
//
// In-plane motion scales by the pixel-to-world factor implied by the
// observed ball size; depth motion comes from the change in apparent
// radius between exposures (the ball shrinks as it leaves the camera).
// The camera-frame vector is then rotated by the mount tilt and pan into
// launch coordinates.
func VelocityVectors(seq []Exposure, cal *shot.Calibration) ([]Vec3, error) {
	if len(seq) < 2 {
		return nil, fmt.Errorf("need at least 2 exposures, have %d", len(seq))
	}

	interval := cal.StrobeInterval().Seconds()
	out := make([]Vec3, 0, len(seq)-1)
	for i := 1; i < len(seq); i++ {
		a, b := seq[i-1], seq[i]
		dt := interval * float64(b.Pulse-a.Pulse)
		if dt <= 0 {
			return nil, fmt.Errorf("non-positive pulse gap between exposures %d and %d", i-1, i)
		}

		rMean := (a.Obs.Radius + b.Obs.Radius) / 2
		scale := cal.MetersPerPixel(rMean)

		// Camera frame: u along image x, v up (image y grows downward),
		// w away from the camera.
		u := (b.Obs.X - a.Obs.X) * scale / dt
		v := -(b.Obs.Y - a.Obs.Y) * scale / dt
		w := (cal.Distance(b.Obs.Radius) - cal.Distance(a.Obs.Radius)) / dt

		out = append(out, toLaunchFrame(u, v, w, cal))
	}
	return out, nil
}

// toLaunchFrame rotates a camera-frame velocity into launch coordinates.
// Tilt is a rotation about the camera's lateral axis (camera pitched down
// sees upward flight as partly in-plane, partly receding); pan rotates
// about the vertical axis.
func toLaunchFrame(u, v, w float64, cal *shot.Calibration) Vec3 {
	tilt := cal.CamTiltDeg * math.Pi / 180
	pan := cal.CamPanDeg * math.Pi / 180

	// Undo tilt: camera up-axis leans back by tilt.
	y := v*math.Cos(tilt) + w*math.Sin(tilt)
	z := -v*math.Sin(tilt) + w*math.Cos(tilt)
	x := u

	// Undo pan about the world vertical.
	xr := x*math.Cos(pan) - z*math.Sin(pan)
	zr := x*math.Sin(pan) + z*math.Cos(pan)

	return Vec3{X: xr, Y: y, Z: zr}
}

// MeanVelocity averages per-pair velocity vectors to reduce detection
// jitter.
func MeanVelocity(vv []Vec3) Vec3 {
	xs := make([]float64, len(vv))
	ys := make([]float64, len(vv))
	zs := make([]float64, len(vv))
	for i, v := range vv {
		xs[i], ys[i], zs[i] = v.X, v.Y, v.Z
	}
	return Vec3{
		X: stat.Mean(xs, nil),
		Y: stat.Mean(ys, nil),
		Z: stat.Mean(zs, nil),
	}
}

// SpeedJitter is the standard deviation of the per-pair speeds, a quality
// signal logged with each result.
func SpeedJitter(vv []Vec3) float64 {
	if len(vv) < 2 {
		return 0
	}
	speeds := make([]float64, len(vv))
	for i, v := range vv {
		speeds[i] = v.Norm()
	}
	return stat.StdDev(speeds, nil)
}

// LaunchAngles derives ball speed and the launch/side angles from the mean
// launch-frame velocity. Side angle is negative left of the target line.
func LaunchAngles(v Vec3) (speedMPS, launchDeg, sideDeg float64) {
	speedMPS = v.Norm()
	if speedMPS == 0 {
		return 0, 0, 0
	}
	horiz := math.Hypot(v.X, v.Z)
	launchDeg = math.Atan2(v.Y, horiz) * 180 / math.Pi
	sideDeg = math.Atan2(v.Z, v.X) * 180 / math.Pi
	return speedMPS, launchDeg, sideDeg
}

// EstimateCarry returns a first-order carry distance in meters: a vacuum
// trajectory damped by an empirical drag factor, with a modest lift bonus
// for backspin. The full aerodynamic simulation lives downstream in the
// simulator; this figure is for the result feed only.
func EstimateCarry(speedMPS, launchDeg, backSpinRPM float64) float64 {
	if speedMPS <= 0 || launchDeg <= 0 {
		return 0
	}
	const g = 9.81
	theta := launchDeg * math.Pi / 180
	vacuum := speedMPS * speedMPS * math.Sin(2*theta) / g

	drag := 0.62
	lift := 1 + math.Min(0.25, backSpinRPM/20000)
	return vacuum * drag * lift
}
