// Package httpapi serves the watch-mode health, metrics and status endpoints.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"discoops/internal/watch"
)

// StatusSource reports the watcher's state.
type StatusSource interface {
	Status() watch.Status
}

// NewRouter returns the HTTP handler. rateLimit is the number of requests
// allowed per client IP per minute.
func NewRouter(logger *slog.Logger, status StatusSource, rateLimit int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.LimitByIP(rateLimit, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(logger, w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		st := status.Status()
		if st.Runs == 0 {
			writeJSON(logger, w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for first run"})
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(logger, w, http.StatusOK, status.Status())
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode response.", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
