// Package detect finds golf balls in captured frames.
//
// Two interchangeable backends implement the same contract: a classical
// Hough-circle detector with explicit tunable thresholds, and a learned
// ONNX model run through OpenCV's DNN module. The backend is chosen once
// per session, not per call.
package detect

import (
	"fmt"
	"sort"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// Detector maps a frame to zero or more candidate ball observations.
//
// Detect must be deterministic for a fixed frame and configuration, and
// re-invocable on the same frame with different tuning. An empty result
// means "no ball found" and is not an error; errors are reserved for
// backend failures (bad image data, inference faults).
type Detector interface {
	// Detect finds up to expected ball exposures in the JPEG frame.
	// expected <= 1 requests single-ball detection in a reference frame.
	Detect(frame []byte, expected int) ([]shot.Observation, error)

	// Close releases backend resources.
	Close() error
}

// Kind selects a detector backend.
type Kind string

const (
	KindHough Kind = "hough"
	KindONNX  Kind = "onnx"
)

// Config holds the tunable detection thresholds shared by both backends.
type Config struct {
	// ConfidenceThresh drops candidates scoring below it.
	ConfidenceThresh float64

	// MinRadiusPx and MaxRadiusPx bound the acceptance band, normally
	// derived from calibration.
	MinRadiusPx float64
	MaxRadiusPx float64

	// ExpectedRadiusPx is the calibrated ball size; candidates closer to
	// it rank higher on confidence ties.
	ExpectedRadiusPx float64

	// MinCircularity rejects contours that are not round enough (0-1).
	MinCircularity float64

	// Contrast enables CLAHE contrast enhancement before edge detection.
	Contrast bool

	// CannyThresh and AccumThresh are the HoughCircles control
	// parameters (upper Canny threshold and accumulator threshold).
	CannyThresh float64
	AccumThresh float64

	// ModelPath is the ONNX model location (learned backend only).
	ModelPath string
}

// DefaultConfig returns production defaults for the classical backend.
func DefaultConfig() Config {
	return Config{
		ConfidenceThresh: 0.35,
		MinRadiusPx:      6,
		MaxRadiusPx:      40,
		ExpectedRadiusPx: 14,
		MinCircularity:   0.75,
		Contrast:         true,
		CannyThresh:      120,
		AccumThresh:      30,
	}
}

// FromCalibration derives the radius band from session calibration.
func (c Config) FromCalibration(cal *shot.Calibration) Config {
	c.MinRadiusPx = cal.MinRadiusPx
	c.MaxRadiusPx = cal.MaxRadiusPx
	c.ExpectedRadiusPx = cal.ExpectedRadiusPx
	return c
}

// New builds the configured backend.
func New(kind Kind, cfg Config) (Detector, error) {
	switch kind {
	case KindHough, "":
		return NewHough(cfg), nil
	case KindONNX:
		return NewONNX(cfg)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", kind)
	}
}

// FilterByRadiusBand drops observations outside [min, max] pixels.
func FilterByRadiusBand(obs []shot.Observation, min, max float64) []shot.Observation {
	out := obs[:0:0]
	for _, o := range obs {
		if o.Radius >= min && o.Radius <= max {
			out = append(out, o)
		}
	}
	return out
}

// Dedupe collapses observations whose centers overlap within one radius,
// keeping the higher-confidence candidate. Input order is preserved for
// the survivors.
func Dedupe(obs []shot.Observation) []shot.Observation {
	var out []shot.Observation
	for _, o := range obs {
		replaced := false
		dropped := false
		for i, kept := range out {
			if !kept.Overlaps(o) && !o.Overlaps(kept) {
				continue
			}
			if o.Confidence > kept.Confidence {
				out[i] = o
				replaced = true
			} else {
				dropped = true
			}
			break
		}
		if !replaced && !dropped {
			out = append(out, o)
		}
	}
	return out
}

// RankCandidates orders observations by confidence, breaking ties by
// closeness of radius to the calibrated expected ball size.
func RankCandidates(obs []shot.Observation, expectedRadius float64) {
	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].Confidence != obs[j].Confidence {
			return obs[i].Confidence > obs[j].Confidence
		}
		di := abs(obs[i].Radius - expectedRadius)
		dj := abs(obs[j].Radius - expectedRadius)
		return di < dj
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
