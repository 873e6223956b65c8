package analyze

import (
	"testing"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

func obsAt(x, y float64) shot.Observation {
	return shot.Observation{X: x, Y: y, Radius: 14, Confidence: 0.8}
}

func TestBuildSequenceOrdersAlongFlight(t *testing.T) {
	cal := shot.DefaultCalibration()

	// Detection order carries no temporal meaning; feed positions shuffled.
	obs := []shot.Observation{
		obsAt(220, 496),
		obsAt(100, 500),
		obsAt(280, 494),
		obsAt(160, 498),
	}

	seq := BuildSequence(obs, cal)
	if len(seq) != 4 {
		t.Fatalf("BuildSequence() len = %d, want 4", len(seq))
	}
	for i := 1; i < len(seq); i++ {
		if seq[i].Obs.X <= seq[i-1].Obs.X {
			t.Errorf("exposure %d at X=%v not ahead of %v", i, seq[i].Obs.X, seq[i-1].Obs.X)
		}
	}
	for i, e := range seq {
		if e.Pulse != i {
			t.Errorf("exposure %d pulse = %d, want %d", i, e.Pulse, i)
		}
	}
}

func TestBuildSequencePrunesDiscontinuity(t *testing.T) {
	cal := shot.DefaultCalibration()

	// Three consistent exposures plus a far-ahead reflection candidate that
	// no plausible ball speed could reach from its neighbor.
	obs := []shot.Observation{
		obsAt(100, 500),
		obsAt(160, 498),
		obsAt(220, 496),
		obsAt(280, 494),
		obsAt(520, 490),
	}

	seq := BuildSequence(obs, cal)
	if len(seq) != 4 {
		t.Fatalf("BuildSequence() len = %d, want 4 after pruning", len(seq))
	}
	for _, e := range seq {
		if e.Obs.X == 520 {
			t.Error("discontinuous candidate at X=520 survived pruning")
		}
	}
}

func TestBuildSequenceRebasesPulseAfterLeadingOutlier(t *testing.T) {
	cal := shot.DefaultCalibration()

	// The outlier sorts first along the flight axis but cannot chain to
	// anything; the kept run must still start at pulse 0.
	obs := []shot.Observation{
		obsAt(300, 500),
		obsAt(360, 498),
		obsAt(420, 496),
		obsAt(20, 500),
	}

	seq := BuildSequence(obs, cal)
	if len(seq) != 3 {
		t.Fatalf("BuildSequence() len = %d, want 3", len(seq))
	}
	if seq[0].Pulse != 0 {
		t.Errorf("first kept pulse = %d, want 0", seq[0].Pulse)
	}
	if seq[0].Obs.X != 300 {
		t.Errorf("first kept X = %v, want 300", seq[0].Obs.X)
	}
}

func TestBuildSequenceVerticalDominantGoesUpward(t *testing.T) {
	cal := shot.DefaultCalibration()

	// Near-vertical flight: image y decreases as the ball rises.
	obs := []shot.Observation{
		obsAt(402, 300),
		obsAt(400, 500),
		obsAt(401, 400),
	}

	seq := BuildSequence(obs, cal)
	if len(seq) != 3 {
		t.Fatalf("BuildSequence() len = %d, want 3", len(seq))
	}
	for i := 1; i < len(seq); i++ {
		if seq[i].Obs.Y >= seq[i-1].Obs.Y {
			t.Errorf("exposure %d at Y=%v not above %v", i, seq[i].Obs.Y, seq[i-1].Obs.Y)
		}
	}
}

func TestBuildSequenceDegenerate(t *testing.T) {
	cal := shot.DefaultCalibration()

	if got := BuildSequence(nil, cal); got != nil {
		t.Errorf("BuildSequence(nil) = %v, want nil", got)
	}

	one := BuildSequence([]shot.Observation{obsAt(100, 100)}, cal)
	if len(one) != 1 || one[0].Pulse != 0 {
		t.Errorf("BuildSequence(single) = %v, want one exposure at pulse 0", one)
	}
}
