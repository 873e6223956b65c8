// Package analyze turns a teed-ball frame and a strobe-sequence frame into
// a shot result: launch speed, launch and side angles, and spin.
package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/fairwaylab/strobeshot/internal/log"
	"github.com/fairwaylab/strobeshot/pkg/capture"
	"github.com/fairwaylab/strobeshot/pkg/detect"
	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// StrobeFrame is a captured image holding multiple strobe-lit ball
// exposures, with the strobe metadata needed to time them.
type StrobeFrame struct {
	capture.Frame

	// Exposures is the number of strobe pulses fired into the exposure
	// window, the upper bound on recoverable ball positions.
	Exposures int
}

// Options tune the analysis pass.
type Options struct {
	// ConfidenceFloor is the minimum address-ball confidence accepted
	// when the address position is otherwise indeterminate.
	ConfidenceFloor float64

	// MinExposures is the minimum exposures left after pruning; below it
	// the cycle fails. Two yield speed and angles, three or more add
	// spin and trajectory confidence.
	MinExposures int

	// SpinMinExposures is the exposure count required for spin
	// estimation.
	SpinMinExposures int
}

// DefaultOptions returns the production analysis tuning.
func DefaultOptions() Options {
	return Options{
		ConfidenceFloor:  0.25,
		MinExposures:     2,
		SpinMinExposures: 3,
	}
}

// Analyzer orchestrates detection and the physics chain for one shot.
// Safe for reuse across cycles; all per-cycle state stays on the stack.
type Analyzer struct {
	det  detect.Detector
	spin SpinEstimator
	cal  *shot.Calibration
	opts Options
}

// New creates an Analyzer. spin may be nil to disable spin estimation.
func New(det detect.Detector, spin SpinEstimator, cal *shot.Calibration, opts Options) *Analyzer {
	if spin == nil {
		spin = NoSpin{}
	}
	return &Analyzer{det: det, spin: spin, cal: cal, opts: opts}
}

// Analyze runs the full pipeline. On failure it returns a zero Result and
// one of the shot sentinel errors; it never returns a partially populated
// result.
func (a *Analyzer) Analyze(ctx context.Context, teed capture.Frame, strobe StrobeFrame) (shot.Result, error) {
	start := time.Now()

	address, err := a.addressBall(teed)
	if err != nil {
		return shot.Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return shot.Result{}, err
	}

	seq, err := a.exposures(strobe)
	if err != nil {
		return shot.Result{}, err
	}

	vv, err := VelocityVectors(seq, a.cal)
	if err != nil {
		return shot.Result{}, fmt.Errorf("%w: %v", shot.ErrInsufficientExposures, err)
	}
	mean := MeanVelocity(vv)
	speed, launch, side := LaunchAngles(mean)

	if err := ctx.Err(); err != nil {
		return shot.Result{}, err
	}

	res := shot.Result{
		SpeedMPS:       speed,
		LaunchAngleDeg: launch,
		SideAngleDeg:   side,
		Kind:           shot.KindValid,
		CapturedAt:     strobe.CapturedAt,
	}

	if len(seq) >= a.opts.SpinMinExposures {
		sp, ok, err := a.spin.Estimate(strobe.Data, seq, a.cal)
		switch {
		case err != nil:
			log.Warn("spin estimation failed", "error", err)
			res.Kind = shot.KindSpinUnavailable
		case ok:
			res.BackSpinRPM = sp.BackRPM
			res.SideSpinRPM = sp.SideRPM
			res.SpinAxisDeg = sp.AxisDeg
		default:
			res.Kind = shot.KindSpinUnavailable
		}
	} else {
		res.Kind = shot.KindSpinUnavailable
	}

	if err := a.plausible(res); err != nil {
		return shot.Result{}, err
	}

	res.CarryMeters = EstimateCarry(res.SpeedMPS, res.LaunchAngleDeg, res.BackSpinRPM)

	log.Debug("analysis complete",
		"speed_mps", res.SpeedMPS,
		"launch_deg", res.LaunchAngleDeg,
		"side_deg", res.SideAngleDeg,
		"exposures", len(seq),
		"jitter_mps", SpeedJitter(vv),
		"address_conf", address.Confidence,
		"elapsed", time.Since(start))

	return res, nil
}

// addressBall locates the teed ball. Zero or several high-confidence
// candidates leave the address indeterminate; analysis continues with the
// best candidate above the floor, and fails only when nothing clears it.
func (a *Analyzer) addressBall(teed capture.Frame) (shot.Observation, error) {
	obs, err := a.det.Detect(teed.Data, 0)
	if err != nil {
		return shot.Observation{}, fmt.Errorf("%w: address frame: %v", shot.ErrDetectionBackend, err)
	}

	switch len(obs) {
	case 0:
		return shot.Observation{}, fmt.Errorf("%w: no candidates in teed frame", shot.ErrNoBallAtAddress)
	case 1:
	default:
		log.Warn("address position indeterminate", "candidates", len(obs))
	}

	best := obs[0] // detectors return candidates ranked by confidence
	if best.Confidence < a.opts.ConfidenceFloor {
		return shot.Observation{}, fmt.Errorf("%w: best candidate confidence %.2f below floor %.2f",
			shot.ErrNoBallAtAddress, best.Confidence, a.opts.ConfidenceFloor)
	}
	return best, nil
}

// exposures detects, de-duplicates, orders and prunes the strobe-lit ball
// positions.
func (a *Analyzer) exposures(strobe StrobeFrame) ([]Exposure, error) {
	obs, err := a.det.Detect(strobe.Data, strobe.Exposures)
	if err != nil {
		return nil, fmt.Errorf("%w: strobe frame: %v", shot.ErrDetectionBackend, err)
	}

	obs = detect.Dedupe(obs)
	if len(obs) < a.opts.MinExposures {
		return nil, fmt.Errorf("%w: %d of %d required exposures recovered",
			shot.ErrInsufficientExposures, len(obs), a.opts.MinExposures)
	}

	seq := BuildSequence(obs, a.cal)
	if len(seq) < a.opts.MinExposures {
		return nil, fmt.Errorf("%w: %d exposures remain after continuity pruning",
			shot.ErrInsufficientExposures, len(seq))
	}
	return seq, nil
}

// plausible validates the final numbers against physical bounds.
func (a *Analyzer) plausible(res shot.Result) error {
	if res.SpeedMPS <= 0 {
		return fmt.Errorf("%w: non-positive speed %.2f m/s", shot.ErrImplausibleResult, res.SpeedMPS)
	}
	if res.SpeedMPS > a.cal.MaxBallSpeedMPS {
		return fmt.Errorf("%w: speed %.1f m/s exceeds ceiling %.1f", shot.ErrImplausibleResult,
			res.SpeedMPS, a.cal.MaxBallSpeedMPS)
	}
	if res.LaunchAngleDeg < -20 || res.LaunchAngleDeg > 75 {
		return fmt.Errorf("%w: launch angle %.1f outside [-20, 75]", shot.ErrImplausibleResult,
			res.LaunchAngleDeg)
	}
	return nil
}
