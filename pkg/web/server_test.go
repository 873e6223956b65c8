package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fairwaylab/strobeshot/internal/store"
	"github.com/fairwaylab/strobeshot/pkg/shot"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	shots, err := store.Open(filepath.Join(t.TempDir(), "shots.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { shots.Close() })

	srv := NewServer(":0", "ballwatch", func() string { return "armed" }, shots)
	return srv, shots
}

func get(t *testing.T, srv *Server, path string) (int, []byte) {
	t.Helper()
	resp, err := srv.app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := get(t, srv, "/health")
	if code != 200 {
		t.Fatalf("GET /health = %d, want 200", code)
	}
	var m map[string]string
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatal(err)
	}
	if m["status"] != "ok" {
		t.Errorf(`status = %q, want "ok"`, m["status"])
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := get(t, srv, "/api/status")
	if code != 200 {
		t.Fatalf("GET /api/status = %d, want 200", code)
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.Role != "ballwatch" {
		t.Errorf("Role = %q, want ballwatch", st.Role)
	}
	if st.State != "armed" {
		t.Errorf("State = %q, want armed", st.State)
	}
}

func TestShotsEndpoints(t *testing.T) {
	srv, shots := newTestServer(t)

	code, _ := get(t, srv, "/api/shots/latest")
	if code != 404 {
		t.Errorf("GET /api/shots/latest on empty history = %d, want 404", code)
	}

	for _, cid := range []string{"a", "b", "c"} {
		res := shot.Result{Kind: shot.KindValid, SpeedMPS: 50, CorrelationID: cid}
		if err := store.NewSink(shots).Publish(res); err != nil {
			t.Fatal(err)
		}
	}

	code, body := get(t, srv, "/api/shots?limit=2")
	if code != 200 {
		t.Fatalf("GET /api/shots = %d, want 200", code)
	}
	var list []shot.Result
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].CorrelationID != "c" {
		t.Errorf("first shot cid = %q, want newest (c)", list[0].CorrelationID)
	}

	code, body = get(t, srv, "/api/shots/latest")
	if code != 200 {
		t.Fatalf("GET /api/shots/latest = %d, want 200", code)
	}
	var latest shot.Result
	if err := json.Unmarshal(body, &latest); err != nil {
		t.Fatal(err)
	}
	if latest.CorrelationID != "c" {
		t.Errorf("latest cid = %q, want c", latest.CorrelationID)
	}
}

func TestShotsDisabledWithoutStore(t *testing.T) {
	srv := NewServer(":0", "strobecam", nil, nil)

	if code, _ := get(t, srv, "/api/shots"); code != 404 {
		t.Errorf("GET /api/shots without history = %d, want 404", code)
	}

	// Status still works with no state func.
	code, body := get(t, srv, "/api/status")
	if code != 200 {
		t.Fatalf("GET /api/status = %d, want 200", code)
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "" {
		t.Errorf("State = %q, want empty on strobecam", st.State)
	}
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := get(t, srv, "/metrics")
	if code != 200 {
		t.Fatalf("GET /metrics = %d, want 200", code)
	}
	if len(body) == 0 {
		t.Error("metrics body empty")
	}
}
