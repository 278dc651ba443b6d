package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type fakeServer struct {
	listenErr error
	stopped   chan struct{}
	shutdowns atomic.Int32
}

func newFakeServer(listenErr error) *fakeServer {
	return &fakeServer{listenErr: listenErr, stopped: make(chan struct{})}
}

func (s *fakeServer) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stopped
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	if s.shutdowns.Add(1) == 1 {
		close(s.stopped)
	}
	return nil
}

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	srv := newFakeServer(nil)
	svc := NewHTTPService(srv, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return")
	}
	if n := srv.shutdowns.Load(); n != 1 {
		t.Fatalf("shutdowns = %d, want 1", n)
	}
}

func TestHTTPServiceReportsListenFailure(t *testing.T) {
	svc := NewHTTPService(newFakeServer(errors.New("address already in use")), time.Second)
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatalf("Serve should fail when the listener cannot start")
	}
}

type countingService struct {
	starts atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	if s.starts.Add(1) == 1 {
		return errors.New("first start fails")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeRestartsFailedServices(t *testing.T) {
	tree := New(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	svc := &countingService{}
	tree.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for svc.starts.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("service was not restarted, starts = %d", svc.starts.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("tree did not stop")
	}
}
