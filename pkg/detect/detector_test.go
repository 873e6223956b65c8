package detect

import (
	"testing"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

func TestFilterByRadiusBand(t *testing.T) {
	obs := []shot.Observation{
		{X: 1, Radius: 4},
		{X: 2, Radius: 6},
		{X: 3, Radius: 20},
		{X: 4, Radius: 40},
		{X: 5, Radius: 41},
	}

	got := FilterByRadiusBand(obs, 6, 40)
	if len(got) != 3 {
		t.Fatalf("FilterByRadiusBand() len = %d, want 3", len(got))
	}
	for _, o := range got {
		if o.Radius < 6 || o.Radius > 40 {
			t.Errorf("kept radius %v outside band [6, 40]", o.Radius)
		}
	}
}

func TestDedupe(t *testing.T) {
	obs := []shot.Observation{
		{X: 100, Y: 100, Radius: 14, Confidence: 0.6},
		{X: 104, Y: 102, Radius: 14, Confidence: 0.9}, // same ball, better score
		{X: 300, Y: 100, Radius: 14, Confidence: 0.5}, // distinct ball
	}

	got := Dedupe(obs)
	if len(got) != 2 {
		t.Fatalf("Dedupe() len = %d, want 2", len(got))
	}
	if got[0].Confidence != 0.9 {
		t.Errorf("Dedupe() kept confidence %v for overlapping pair, want 0.9", got[0].Confidence)
	}
	if got[1].X != 300 {
		t.Errorf("Dedupe() second survivor X = %v, want 300", got[1].X)
	}
}

func TestDedupeKeepsFirstOnLowerConfidence(t *testing.T) {
	obs := []shot.Observation{
		{X: 100, Y: 100, Radius: 14, Confidence: 0.9},
		{X: 103, Y: 100, Radius: 14, Confidence: 0.4},
	}

	got := Dedupe(obs)
	if len(got) != 1 {
		t.Fatalf("Dedupe() len = %d, want 1", len(got))
	}
	if got[0].X != 100 {
		t.Errorf("Dedupe() kept X = %v, want first candidate at 100", got[0].X)
	}
}

func TestDedupeEmpty(t *testing.T) {
	if got := Dedupe(nil); len(got) != 0 {
		t.Errorf("Dedupe(nil) len = %d, want 0", len(got))
	}
}

func TestRankCandidates(t *testing.T) {
	obs := []shot.Observation{
		{X: 1, Radius: 30, Confidence: 0.5},
		{X: 2, Radius: 15, Confidence: 0.5}, // tie broken by radius match
		{X: 3, Radius: 20, Confidence: 0.8},
	}

	RankCandidates(obs, 14)

	if obs[0].X != 3 {
		t.Errorf("first ranked X = %v, want 3 (highest confidence)", obs[0].X)
	}
	if obs[1].X != 2 {
		t.Errorf("second ranked X = %v, want 2 (radius closest to expected)", obs[1].X)
	}
	if obs[2].X != 1 {
		t.Errorf("third ranked X = %v, want 1", obs[2].X)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New("cascade", DefaultConfig()); err == nil {
		t.Error("New(cascade) = nil error, want error")
	}
}

func TestFromCalibration(t *testing.T) {
	cal := shot.DefaultCalibration()
	cal.MinRadiusPx = 8
	cal.MaxRadiusPx = 25
	cal.ExpectedRadiusPx = 12

	cfg := DefaultConfig().FromCalibration(cal)
	if cfg.MinRadiusPx != 8 || cfg.MaxRadiusPx != 25 || cfg.ExpectedRadiusPx != 12 {
		t.Errorf("FromCalibration() band = [%v, %v] expected %v, want [8, 25] 12",
			cfg.MinRadiusPx, cfg.MaxRadiusPx, cfg.ExpectedRadiusPx)
	}
}
