package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakePinger is a test double for the Pinger interface. When block is set,
// Ping waits for the context to end and returns its error.
type fakePinger struct {
	name  string
	err   error
	delay time.Duration
	block bool
}

func (f *fakePinger) Name() string { return f.name }

func (f *fakePinger) Ping(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.err
}

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(probeTimeout time.Duration, pingers ...Pinger) *Server {
	return &Server{cfg: &Config{ProbeTimeout: probeTimeout}, pingers: pingers}
}

func getReady(t *testing.T, s *Server) (int, readyResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, resp
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newReadyTestServer(0).handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d, body: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	refused := errors.New("dial tcp 127.0.0.1:5432: connection refused")

	tests := []struct {
		name       string
		pingers    []Pinger
		wantStatus int
		wantReady  bool
		wantOK     []bool
	}{
		{
			name:       "no pingers is liveness only",
			wantStatus: http.StatusOK,
			wantReady:  true,
			wantOK:     []bool{},
		},
		{
			name: "all healthy",
			pingers: []Pinger{
				&fakePinger{name: "postgres"},
				&fakePinger{name: "qdrant"},
				&fakePinger{name: "ollama"},
			},
			wantStatus: http.StatusOK,
			wantReady:  true,
			wantOK:     []bool{true, true, true},
		},
		{
			name: "catalog down",
			pingers: []Pinger{
				&fakePinger{name: "postgres", err: refused},
				&fakePinger{name: "ollama"},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{false, true},
		},
		{
			name: "all down",
			pingers: []Pinger{
				&fakePinger{name: "postgres", err: refused},
				&fakePinger{name: "ollama", err: errors.New("HTTP 502")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, resp := getReady(t, newReadyTestServer(0, tt.pingers...))
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if resp.Ready != tt.wantReady {
				t.Errorf("ready = %v, want %v", resp.Ready, tt.wantReady)
			}
			if len(resp.Checks) != len(tt.wantOK) {
				t.Fatalf("checks = %d, want %d", len(resp.Checks), len(tt.wantOK))
			}
			for i, c := range resp.Checks {
				if c.Name != tt.pingers[i].Name() {
					t.Errorf("check %d name = %q, want registration order %q", i, c.Name, tt.pingers[i].Name())
				}
				if c.OK != tt.wantOK[i] {
					t.Errorf("check %q ok = %v, want %v", c.Name, c.OK, tt.wantOK[i])
				}
				if !c.OK && c.Error == "" {
					t.Errorf("check %q: expected a failure reason", c.Name)
				}
			}
		})
	}
}

func TestHandleReady_ProbeTimeout(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(50*time.Millisecond,
		&fakePinger{name: "postgres"},
		&fakePinger{name: "qdrant", block: true},
	)

	start := time.Now()
	code, resp := getReady(t, s)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("readiness took %v; the probe timeout was not applied", elapsed)
	}
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if resp.Checks[1].OK || resp.Checks[1].Error != context.DeadlineExceeded.Error() {
		t.Errorf("qdrant check = %+v, want deadline exceeded", resp.Checks[1])
	}
}

func TestHandleReady_ProbesRunConcurrently(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(0,
		&fakePinger{name: "postgres", delay: 200 * time.Millisecond},
		&fakePinger{name: "qdrant", delay: 200 * time.Millisecond},
		&fakePinger{name: "ollama", delay: 200 * time.Millisecond},
	)

	start := time.Now()
	code, resp := getReady(t, s)
	if elapsed := time.Since(start); elapsed >= 550*time.Millisecond {
		t.Errorf("readiness took %v; probes appear to run sequentially", elapsed)
	}
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	for _, c := range resp.Checks {
		if c.LatencyMS < 150 {
			t.Errorf("check %q latency_ms = %d, want about 200", c.Name, c.LatencyMS)
		}
	}
}
