package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "shots.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(cid string, speed float64) shot.Result {
	return shot.Result{
		SpeedMPS:       speed,
		LaunchAngleDeg: 13.2,
		SideAngleDeg:   -1.4,
		BackSpinRPM:    2800,
		SideSpinRPM:    -250,
		CarryMeters:    210,
		Kind:           shot.KindValid,
		CorrelationID:  cid,
		CapturedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestInsertAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, cid := range []string{"a", "b", "c"} {
		if err := s.Insert(ctx, sampleResult(cid, 40+float64(i))); err != nil {
			t.Fatalf("Insert(%s) error = %v", cid, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].CorrelationID != "c" || got[1].CorrelationID != "b" {
		t.Errorf("Recent() order = %q, %q, want c, b", got[0].CorrelationID, got[1].CorrelationID)
	}
	if got[0].SpeedMPS != 42 {
		t.Errorf("SpeedMPS = %v, want 42", got[0].SpeedMPS)
	}
	if got[0].Kind != shot.KindValid {
		t.Errorf("Kind = %v, want %v", got[0].Kind, shot.KindValid)
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, sampleResult("a", 40)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent(0) error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Recent(0) len = %d, want 1", len(got))
	}
}

func TestLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() on empty store error = %v", err)
	}
	if res != nil {
		t.Fatalf("Latest() on empty store = %+v, want nil", res)
	}

	if err := s.Insert(ctx, sampleResult("a", 40)); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, sampleResult("b", 45)); err != nil {
		t.Fatal(err)
	}

	res, err = s.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if res == nil || res.CorrelationID != "b" {
		t.Errorf("Latest() = %+v, want the b shot", res)
	}
}

func TestFailureRowRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fail := shot.Failure(shot.KindPeerTimeout, "cid-x", "no image after 4s")
	if err := s.Insert(ctx, fail); err != nil {
		t.Fatalf("Insert(failure) error = %v", err)
	}

	res, err := s.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != shot.KindPeerTimeout {
		t.Errorf("Kind = %v, want %v", res.Kind, shot.KindPeerTimeout)
	}
	if res.Message != "no image after 4s" {
		t.Errorf("Message = %q, want the failure message", res.Message)
	}
}

func TestSinkPublish(t *testing.T) {
	s := openTestStore(t)

	if err := NewSink(s).Publish(sampleResult("via-sink", 50)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	res, err := s.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.CorrelationID != "via-sink" {
		t.Errorf("Latest() = %+v, want the published shot", res)
	}
}
