// Package watch re-syncs every mapped event role of a server on a cron schedule.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"discoops/internal/metrics"
	"discoops/internal/rolesync"
)

// Syncer is the part of the role synchronizer a Watcher drives.
type Syncer interface {
	Mapped(ctx context.Context, guildID string) (map[string]string, error)
	Sync(ctx context.Context, guildID, eventID string) (rolesync.Report, error)
}

// PassStatus summarizes the last sync of one event.
type PassStatus struct {
	EventID       string `json:"event_id"`
	RoleID        string `json:"role_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Added         int    `json:"added"`
	Removed       int    `json:"removed"`
	Unchanged     int    `json:"unchanged"`
	Failed        int    `json:"failed"`
	Error         string `json:"error,omitempty"`
}

// Status describes the watcher's most recent run.
type Status struct {
	GuildID     string       `json:"guild_id"`
	Schedule    string       `json:"schedule"`
	Running     bool         `json:"running"`
	Runs        int          `json:"runs"`
	LastRun     *time.Time   `json:"last_run,omitempty"`
	LastSuccess *time.Time   `json:"last_success,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
	Passes      []PassStatus `json:"passes"`
}

// Watcher periodically syncs every mapped event of one server.
type Watcher struct {
	logger   *slog.Logger
	syncer   Syncer
	guildID  string
	schedule string

	runMu sync.Mutex // serializes runs

	mu     sync.RWMutex
	status Status
}

// New creates a Watcher for a standard cron spec or descriptor such as "@every 10m".
func New(logger *slog.Logger, syncer Syncer, guildID, schedule string) (*Watcher, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", schedule, err)
	}
	return &Watcher{
		logger:   logger.With("component", "watch", "guild", guildID),
		syncer:   syncer,
		guildID:  guildID,
		schedule: schedule,
		status:   Status{GuildID: guildID, Schedule: schedule, Passes: []PassStatus{}},
	}, nil
}

// RunOnce syncs every mapped event once, in event id order. One event's
// failure does not stop the others; the joined errors are returned.
func (w *Watcher) RunOnce(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	w.setRunning(true)
	start := time.Now()
	w.logger.Info("Starting scheduled re-sync.")

	mapped, err := w.syncer.Mapped(ctx, w.guildID)
	if err != nil {
		err = fmt.Errorf("failed to list mapped events: %w", err)
		w.finish(start, nil, err)
		metrics.RecordWatchRun(0, err)
		return err
	}

	eventIDs := make([]string, 0, len(mapped))
	for id := range mapped {
		eventIDs = append(eventIDs, id)
	}
	slices.Sort(eventIDs)

	passes := make([]PassStatus, 0, len(eventIDs))
	var errs []error
	for _, eventID := range eventIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		report, err := w.syncer.Sync(ctx, w.guildID, eventID)
		ps := passStatus(eventID, mapped[eventID], report, err)
		passes = append(passes, ps)

		switch {
		case errors.Is(err, rolesync.ErrNotFound):
			w.logger.Warn("Mapped role no longer exists, mapping cleared.", "event", eventID, "role", mapped[eventID])
		case err != nil:
			w.logger.Error("Failed to sync event role.", "event", eventID, "error", err)
			errs = append(errs, fmt.Errorf("event %s: %w", eventID, err))
		}
	}

	err = errors.Join(errs...)
	w.finish(start, passes, err)
	metrics.RecordWatchRun(len(eventIDs), err)
	w.logger.Info("Scheduled re-sync finished.", "events", len(eventIDs), "failed", len(errs), "duration", time.Since(start))
	return err
}

// Serve runs RunOnce on the schedule until ctx is done. A run still in
// progress when the next one is due is not overlapped; the due run is skipped.
func (w *Watcher) Serve(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.logger})), cron.WithLogger(cronLogger{w.logger}))
	if _, err := c.AddFunc(w.schedule, func() {
		_ = w.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule re-sync: %w", err)
	}

	c.Start()
	w.logger.Info("Watching mapped events.", "schedule", w.schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (w *Watcher) String() string { return "watch" }

// Status returns a copy of the current status.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := w.status
	s.Passes = slices.Clone(w.status.Passes)
	return s
}

func (w *Watcher) setRunning(running bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Running = running
}

func (w *Watcher) finish(start time.Time, passes []PassStatus, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Running = false
	w.status.Runs++
	w.status.LastRun = &start
	if passes != nil {
		w.status.Passes = passes
	}
	if err != nil {
		w.status.LastError = err.Error()
		return
	}
	w.status.LastError = ""
	w.status.LastSuccess = &start
}

func passStatus(eventID, roleID string, report rolesync.Report, err error) PassStatus {
	c := report.Counts()
	ps := PassStatus{
		EventID:       eventID,
		RoleID:        roleID,
		CorrelationID: report.CorrelationID,
		Added:         c.Added,
		Removed:       c.Removed,
		Unchanged:     c.Unchanged,
		Failed:        c.Failed,
	}
	if err != nil {
		ps.Error = err.Error()
	}
	return ps
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
