package analyze

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// Spin is the estimated ball rotation. Back spin is positive for normal
// flight; side spin is negative left (counter-clockwise viewed from above).
type Spin struct {
	BackRPM float64
	SideRPM float64
	AxisDeg float64
}

// SpinEstimator extracts ball rotation from the strobe-sequence frame.
// The estimation signal is deliberately pluggable: the marking-based
// estimator below is the default, and rigs with unmarked range balls can
// substitute their own.
type SpinEstimator interface {
	// Estimate computes spin from at least 3 exposures. ok is false when
	// the signal is too weak to commit to a number.
	Estimate(strobe []byte, seq []Exposure, cal *shot.Calibration) (spin Spin, ok bool, err error)
}

// NoSpin always reports spin unavailable. Used when the session disables
// spin estimation.
type NoSpin struct{}

// Estimate implements SpinEstimator.
func (NoSpin) Estimate([]byte, []Exposure, *shot.Calibration) (Spin, bool, error) {
	return Spin{}, false, nil
}

// MarkingSpin estimates rotation from the angular drift of ball surface
// markings between consecutive exposures.
//
// Each exposure's ball crop is unwrapped to polar coordinates, where a
// rotation about the camera axis becomes a vertical shift of the texture.
// The shift minimizing the absolute difference between consecutive
// unwrapped crops gives the rotation per strobe interval, which is mostly
// back spin for a side-mounted flight camera. Side spin comes from the
// horizontal texture drift of the equatorial band in the same unwraps.
type MarkingSpin struct {
	// MinTexture rejects crops whose texture variance is too low to
	// correlate (clean white ball, overexposure).
	MinTexture float64
}

// NewMarkingSpin returns the default marking-based estimator.
func NewMarkingSpin() *MarkingSpin {
	return &MarkingSpin{MinTexture: 40}
}

// Estimate implements SpinEstimator.
func (m *MarkingSpin) Estimate(strobe []byte, seq []Exposure, cal *shot.Calibration) (Spin, bool, error) {
	if len(seq) < 3 {
		return Spin{}, false, nil
	}

	img, err := gocv.IMDecode(strobe, gocv.IMReadGrayScale)
	if err != nil {
		return Spin{}, false, fmt.Errorf("decode strobe frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return Spin{}, false, fmt.Errorf("empty strobe frame")
	}

	unwraps := make([]gocv.Mat, 0, len(seq))
	defer func() {
		for _, u := range unwraps {
			u.Close()
		}
	}()
	for _, e := range seq {
		u, ok := m.unwrap(img, e.Obs)
		if !ok {
			continue
		}
		unwraps = append(unwraps, u)
	}
	if len(unwraps) < 2 {
		return Spin{}, false, nil
	}

	var rotSum, driftSum float64
	pairs := 0
	for i := 1; i < len(unwraps); i++ {
		rot, drift, ok := m.matchShift(unwraps[i-1], unwraps[i])
		if !ok {
			continue
		}
		rotSum += rot
		driftSum += drift
		pairs++
	}
	if pairs == 0 {
		return Spin{}, false, nil
	}

	interval := cal.StrobeInterval().Seconds()
	// Degrees per interval to revolutions per minute.
	backRPM := (rotSum / float64(pairs)) / 360 / interval * 60
	sideRPM := (driftSum / float64(pairs)) / 360 / interval * 60

	axis := math.Atan2(sideRPM, math.Abs(backRPM)) * 180 / math.Pi
	return Spin{BackRPM: backRPM, SideRPM: sideRPM, AxisDeg: axis}, true, nil
}

// unwrap crops the ball at o and maps it to polar coordinates.
func (m *MarkingSpin) unwrap(img gocv.Mat, o shot.Observation) (gocv.Mat, bool) {
	r := int(o.Radius)
	x0, y0 := int(o.X)-r, int(o.Y)-r
	x1, y1 := int(o.X)+r, int(o.Y)+r
	if x0 < 0 || y0 < 0 || x1 > img.Cols() || y1 > img.Rows() || r < 4 {
		return gocv.Mat{}, false
	}

	crop := img.Region(image.Rect(x0, y0, x1, y1))
	defer crop.Close()

	polar := gocv.NewMat()
	gocv.LinearPolar(crop, &polar,
		image.Pt(crop.Cols()/2, crop.Rows()/2),
		float64(r), gocv.InterpolationLinear)

	mean, stddev := gocv.NewMat(), gocv.NewMat()
	defer mean.Close()
	defer stddev.Close()
	gocv.MeanStdDev(polar, &mean, &stddev)
	if stddev.GetDoubleAt(0, 0) < m.MinTexture/10 {
		polar.Close()
		return gocv.Mat{}, false
	}
	return polar, true
}

// matchShift finds the polar row shift (rotation, degrees) and column
// shift (radial marking drift, mapped to degrees of side rotation)
// minimizing the mean absolute difference between two unwrapped crops.
func (m *MarkingSpin) matchShift(a, b gocv.Mat) (rotDeg, driftDeg float64, ok bool) {
	rows := a.Rows()
	if rows == 0 || b.Rows() != rows || a.Cols() != b.Cols() {
		return 0, 0, false
	}

	// Rotation search window: up to a quarter turn per interval.
	maxShift := rows / 4
	bestShift, bestScore := 0, math.MaxFloat64
	for s := -maxShift; s <= maxShift; s++ {
		score := shiftDiff(a, b, s)
		if score < bestScore {
			bestScore = score
			bestShift = s
		}
	}
	if bestScore == math.MaxFloat64 {
		return 0, 0, false
	}

	rotDeg = float64(bestShift) / float64(rows) * 360

	// Equatorial band drift for side spin, same search along columns.
	cols := a.Cols()
	maxDrift := cols / 4
	bestDrift, bestDriftScore := 0, math.MaxFloat64
	for s := -maxDrift; s <= maxDrift; s++ {
		score := colShiftDiff(a, b, s)
		if score < bestDriftScore {
			bestDriftScore = score
			bestDrift = s
		}
	}
	driftDeg = float64(bestDrift) / float64(cols) * 180

	return rotDeg, driftDeg, true
}

func shiftDiff(a, b gocv.Mat, shift int) float64 {
	rows, cols := a.Rows(), a.Cols()
	var sum float64
	n := 0
	for y := 0; y < rows; y++ {
		ys := y + shift
		if ys < 0 || ys >= rows {
			continue
		}
		for x := 0; x < cols; x += 2 {
			d := float64(a.GetUCharAt(y, x)) - float64(b.GetUCharAt(ys, x))
			sum += math.Abs(d)
			n++
		}
	}
	if n == 0 {
		return math.MaxFloat64
	}
	return sum / float64(n)
}

func colShiftDiff(a, b gocv.Mat, shift int) float64 {
	rows, cols := a.Rows(), a.Cols()
	var sum float64
	n := 0
	for y := 0; y < rows; y += 2 {
		for x := 0; x < cols; x++ {
			xs := x + shift
			if xs < 0 || xs >= cols {
				continue
			}
			d := float64(a.GetUCharAt(y, x)) - float64(b.GetUCharAt(y, xs))
			sum += math.Abs(d)
			n++
		}
	}
	if n == 0 {
		return math.MaxFloat64
	}
	return sum / float64(n)
}
