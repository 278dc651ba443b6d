package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"discoops/internal/mapping"
	"discoops/internal/models"
)

// Publisher writes an entry to one external calendar. remoteID is the id
// returned by the previous Publish of the same event, or empty.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, entry Entry, remoteID string) (string, error)
}

// PushResult is the outcome of mirroring one event to one target.
type PushResult struct {
	Target   string
	RemoteID string
	Updated  bool // an earlier copy was replaced
	Err      error
}

// Mirror publishes events to every configured calendar and remembers the
// remote ids in the mapping store, one namespace per target and server.
type Mirror struct {
	logger          *slog.Logger
	store           mapping.Store
	publishers      []Publisher
	loc             *time.Location
	defaultDuration time.Duration
	dryRun          bool
}

// NewMirror creates a new Mirror.
func NewMirror(logger *slog.Logger, store mapping.Store, publishers []Publisher, loc *time.Location, defaultDuration time.Duration, dryRun bool) *Mirror {
	return &Mirror{
		logger:          logger,
		store:           store,
		publishers:      publishers,
		loc:             loc,
		defaultDuration: defaultDuration,
		dryRun:          dryRun,
	}
}

// Push mirrors event to every target. A failing target does not stop the
// others; the joined errors are returned alongside every result.
func (m *Mirror) Push(ctx context.Context, guildID string, event models.Event, attendees []Attendee) ([]PushResult, error) {
	if len(m.publishers) == 0 {
		return nil, errors.New("no calendar targets configured")
	}
	entry, err := NewEntry(guildID, event, attendees, m.loc, m.defaultDuration)
	if err != nil {
		return nil, fmt.Errorf("cannot mirror event %s: %w", event.ID, err)
	}

	m.logger.Info("Starting calendar push.", "event", event.ID, "targets", len(m.publishers))
	results := make([]PushResult, 0, len(m.publishers))
	var errs []error
	for _, pub := range m.publishers {
		res := m.push(ctx, pub, entry)
		if res.Err != nil {
			m.logger.Error("Failed to push event to calendar.", "target", res.Target, "event", event.ID, "error", res.Err)
			errs = append(errs, fmt.Errorf("%s: %w", res.Target, res.Err))
		}
		results = append(results, res)
	}
	m.logger.Info("Calendar push finished.", "event", event.ID, "failed", len(errs))
	return results, errors.Join(errs...)
}

func (m *Mirror) push(ctx context.Context, pub Publisher, entry Entry) PushResult {
	res := PushResult{Target: pub.Name()}
	ns := mapping.CalendarNamespace(pub.Name(), entry.GuildID)

	remoteID, err := m.store.Get(ctx, ns, entry.Event.ID)
	if err != nil && !errors.Is(err, mapping.ErrNotFound) {
		res.Err = fmt.Errorf("failed to read mirror state: %w", err)
		return res
	}
	res.Updated = remoteID != ""

	if m.dryRun {
		m.logger.Info("[DRY RUN] Would publish event to calendar.", "target", res.Target, "event", entry.Event.ID,
			"title", entry.Event.Name, "start", entry.Start, "update", res.Updated)
		res.RemoteID = remoteID
		return res
	}

	id, err := pub.Publish(ctx, entry, remoteID)
	if err != nil {
		res.Err = err
		return res
	}
	res.RemoteID = id
	if err := m.store.Set(ctx, ns, entry.Event.ID, id); err != nil {
		res.Err = fmt.Errorf("published as %s but failed to save mirror state: %w", id, err)
	}
	return res
}
