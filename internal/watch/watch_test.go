package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"discoops/internal/mapping"
	"discoops/internal/models"
	"discoops/internal/platform/platformtest"
	"discoops/internal/rolesync"
)

const guild = "guild-1"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*Watcher, *platformtest.Fake, mapping.Store) {
	t.Helper()
	fake := platformtest.New()
	store := mapping.NewMemoryStore()
	s := rolesync.New(discardLogger(), fake, store, rolesync.Options{})
	w, err := New(discardLogger(), s, guild, "@every 10m")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, fake, store
}

func mapEvent(t *testing.T, fake *platformtest.Fake, store mapping.Store, eventID string, members ...string) models.Group {
	t.Helper()
	g := fake.SeedGroup("Event: "+eventID, 1, members...)
	if err := store.Set(context.Background(), mapping.RoleNamespace(guild), eventID, g.ID); err != nil {
		t.Fatalf("Set: %v", err)
	}
	return g
}

func TestRunOnceSyncsEveryMappedEvent(t *testing.T) {
	w, fake, store := setup(t)
	fake.AddMembers("a", "b", "c")
	fake.AddEvent(models.Event{ID: "e1"}, "a", "b")
	fake.AddEvent(models.Event{ID: "e2"}, "c")
	g1 := mapEvent(t, fake, store, "e1", "c")
	g2 := mapEvent(t, fake, store, "e2")

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := fake.Members(g1.ID); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("e1 members = %v, want [a b]", got)
	}
	if got := fake.Members(g2.ID); !slices.Equal(got, []string{"c"}) {
		t.Fatalf("e2 members = %v, want [c]", got)
	}

	st := w.Status()
	if st.Runs != 1 || st.LastSuccess == nil || st.LastError != "" || st.Running {
		t.Fatalf("status = %+v", st)
	}
	if len(st.Passes) != 2 || st.Passes[0].EventID != "e1" || st.Passes[0].Added != 2 || st.Passes[0].Removed != 1 {
		t.Fatalf("passes = %+v", st.Passes)
	}
}

func TestRunOnceToleratesDeletedRoles(t *testing.T) {
	w, fake, store := setup(t)
	fake.AddEvent(models.Event{ID: "e1"})
	g := mapEvent(t, fake, store, "e1")
	fake.DropGroup(g.ID)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if m, _ := store.List(context.Background(), mapping.RoleNamespace(guild)); len(m) != 0 {
		t.Fatalf("mapping to deleted role should be cleared, got %v", m)
	}
	if st := w.Status(); len(st.Passes) != 1 || st.Passes[0].Error == "" {
		t.Fatalf("pass should record the missing role: %+v", st.Passes)
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	w, fake, store := setup(t)
	fake.AddMembers("a")
	fake.AddEvent(models.Event{ID: "e1"}, "a")
	fake.AddEvent(models.Event{ID: "e2"}, "a")
	mapEvent(t, fake, store, "e1")
	g2 := mapEvent(t, fake, store, "e2")
	fake.DirectoryErr = errors.New("gateway timeout")

	err := w.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("RunOnce should report failures")
	}
	st := w.Status()
	if st.LastError == "" || st.LastSuccess != nil || len(st.Passes) != 2 {
		t.Fatalf("status = %+v", st)
	}

	fake.DirectoryErr = nil
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if got := fake.Members(g2.ID); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("e2 members = %v, want [a]", got)
	}
	if st := w.Status(); st.Runs != 2 || st.LastError != "" || st.LastSuccess == nil {
		t.Fatalf("status after recovery = %+v", st)
	}
}

type failingSyncer struct{}

func (failingSyncer) Mapped(context.Context, string) (map[string]string, error) {
	return nil, errors.New("store offline")
}

func (failingSyncer) Sync(context.Context, string, string) (rolesync.Report, error) {
	return rolesync.Report{}, nil
}

func TestRunOnceMappedFailure(t *testing.T) {
	w, err := New(discardLogger(), failingSyncer{}, guild, "*/5 * * * *")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("RunOnce should fail when mappings cannot be listed")
	}
	if st := w.Status(); st.LastError == "" || st.Runs != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New(discardLogger(), failingSyncer{}, guild, "every ten minutes"); err == nil {
		t.Fatalf("New should reject an invalid schedule")
	}
}

func TestServeStopsWithContext(t *testing.T) {
	w, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}
