package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"discoops/internal/watch"
)

type staticStatus watch.Status

func (s staticStatus) Status() watch.Status { return watch.Status(s) }

func newTestRouter(st watch.Status, limit int) http.Handler {
	return NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), staticStatus(st), limit)
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name     string
		status   watch.Status
		path     string
		wantCode int
		wantBody string
	}{
		{name: "health", path: "/healthz", wantCode: http.StatusOK, wantBody: `"status":"ok"`},
		{name: "not ready before first run", path: "/readyz", wantCode: http.StatusServiceUnavailable},
		{name: "ready after a run", status: watch.Status{Runs: 1}, path: "/readyz", wantCode: http.StatusOK},
		{name: "metrics", path: "/metrics", wantCode: http.StatusOK, wantBody: "go_goroutines"},
		{name: "unknown", path: "/nope", wantCode: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(tc.status, 100).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != tc.wantCode {
				t.Fatalf("GET %s = %d, want %d", tc.path, rec.Code, tc.wantCode)
			}
			if tc.wantBody != "" && !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Fatalf("GET %s body missing %q", tc.path, tc.wantBody)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	st := watch.Status{
		GuildID:  "g1",
		Schedule: "@every 10m",
		Runs:     3,
		Passes:   []watch.PassStatus{{EventID: "e1", RoleID: "r1", Added: 2}},
	}
	rec := httptest.NewRecorder()
	newTestRouter(st, 100).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	var got watch.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.GuildID != "g1" || got.Runs != 3 || len(got.Passes) != 1 || got.Passes[0].Added != 2 {
		t.Fatalf("status = %+v", got)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestRouter(watch.Status{}, 2)
	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}
}
