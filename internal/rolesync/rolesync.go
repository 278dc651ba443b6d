// Package rolesync keeps an event's notification role in step with the
// members interested in the event.
//
// Every Create, Plan, Sync and Delete for one event runs under a per-event
// lock, so at most one pass per event is in flight. Membership mutations
// within a pass are issued one at a time through a shared rate limiter. A
// member's failure is recorded in the pass report and never stops the pass.
package rolesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"discoops/internal/interest"
	"discoops/internal/logging"
	"discoops/internal/mapping"
	"discoops/internal/metrics"
	"discoops/internal/models"
	"discoops/internal/platform"
)

var (
	// ErrNotFound is returned when no role is mapped to the event, or the mapped role is gone.
	ErrNotFound = errors.New("no role mapped to event")
	// ErrAlreadyExists is returned by Create when the event already has a live role.
	ErrAlreadyExists = errors.New("event already has a role")
)

const (
	// RolePrefix starts every generated role name.
	RolePrefix = "Event: "
	// MaxRoleNameLength is the platform's role name limit, in characters.
	MaxRoleNameLength = 100
)

// Options tunes a Synchronizer.
type Options struct {
	// MutationsPerSecond paces member add/remove calls; zero means unpaced.
	MutationsPerSecond float64
	Burst              int
	// PassTimeout bounds a single pass; zero means no bound beyond the caller's context.
	PassTimeout time.Duration
}

// Synchronizer creates, syncs and deletes event roles.
type Synchronizer struct {
	logger  *slog.Logger
	groups  platform.GroupManager
	dir     platform.Directory
	fetcher *interest.Fetcher
	store   mapping.Store
	locks   *keyLock
	limiter *rate.Limiter
	timeout time.Duration
}

// New creates a new Synchronizer.
func New(logger *slog.Logger, client platform.Client, store mapping.Store, opts Options) *Synchronizer {
	limit := rate.Inf
	if opts.MutationsPerSecond > 0 {
		limit = rate.Limit(opts.MutationsPerSecond)
	}
	burst := max(opts.Burst, 1)

	return &Synchronizer{
		logger:  logger,
		groups:  client,
		dir:     client,
		fetcher: interest.NewFetcher(logger, client),
		store:   store,
		locks:   newKeyLock(),
		limiter: rate.NewLimiter(limit, burst),
		timeout: opts.PassTimeout,
	}
}

// GroupName returns the role name for an event, truncated to the platform limit.
func GroupName(eventName string) string {
	name := RolePrefix + eventName
	if utf8.RuneCountInString(name) <= MaxRoleNameLength {
		return name
	}
	runes := []rune(name)
	return string(runes[:MaxRoleNameLength])
}

// pass holds the per-call state shared by the operations.
type pass struct {
	ctx    context.Context
	id     string
	logger *slog.Logger
	ns     string
	done   func()
}

// begin takes the event lock and prepares the pass context. Callers must defer p.done.
func (s *Synchronizer) begin(ctx context.Context, op, guildID, eventID string) (*pass, error) {
	id := logging.GenerateCorrelationID()
	ctx = logging.ContextWithCorrelationID(ctx, id)

	var cancel context.CancelFunc = func() {}
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}

	unlock, err := s.locks.Lock(ctx, guildID+"/"+eventID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("waiting for another %s pass on event %s: %w", op, eventID, err)
	}

	return &pass{
		ctx:    ctx,
		id:     id,
		logger: s.logger.With("op", op, "guild", guildID, "event", eventID, logging.CorrelationIDKey, id),
		ns:     mapping.RoleNamespace(guildID),
		done: func() {
			unlock()
			cancel()
		},
	}, nil
}

// Create makes a new role for event and adds every interested member to it.
// agentID is the identity whose authority is checked; empty means the bot.
//
// A mapping whose role was deleted on the platform is cleared and creation
// proceeds. The mapping is written only after the role exists. If the agent
// does not outrank the new role, the role is kept and every addition is
// reported as a HierarchyViolation.
func (s *Synchronizer) Create(ctx context.Context, guildID string, event models.Event, agentID string) (report Report, err error) {
	start := time.Now()
	defer func() { metrics.RecordPass("create", time.Since(start), len(report.Failures), err) }()

	p, err := s.begin(ctx, "create", guildID, event.ID)
	if err != nil {
		return Report{}, err
	}
	defer p.done()
	report = Report{CorrelationID: p.id, EventID: event.ID}

	if err := s.clearStale(p, guildID, event.ID); err != nil {
		return report, err
	}

	interested, err := s.interested(p, guildID, event.ID)
	if err != nil {
		return report, err
	}
	agentRank, err := s.groups.AgentRank(p.ctx, guildID, agentID)
	if err != nil {
		return report, fmt.Errorf("failed to determine authority of %s: %w", agentLabel(agentID), err)
	}

	spec := models.GroupSpec{
		Name:        GroupName(event.Name),
		Color:       rand.IntN(0xFFFFFF + 1),
		Mentionable: true,
		Reason:      fmt.Sprintf("discoops: role for event %q requested by %s", event.Name, agentLabel(agentID)),
	}
	group, err := s.groups.CreateGroup(p.ctx, guildID, spec)
	if err != nil {
		return report, fmt.Errorf("failed to create role: %w", err)
	}
	report.Group = group
	p.logger.Info("Created role.", "role", group.ID, "name", group.Name, "position", group.Position)

	if err := s.store.Set(p.ctx, p.ns, event.ID, group.ID); err != nil {
		// Best-effort rollback of the unmapped role.
		if derr := s.groups.DeleteGroup(context.WithoutCancel(p.ctx), guildID, group.ID, "discoops: mapping write failed"); derr != nil {
			p.logger.Error("Failed to roll back role after mapping write failure.", "role", group.ID, "error", derr)
		}
		return Report{CorrelationID: p.id, EventID: event.ID}, fmt.Errorf("failed to save role mapping: %w", err)
	}

	toAdd := interested.Sorted()
	if agentRank <= group.Position {
		p.logger.Warn("Acting identity does not outrank the new role, skipping member additions.",
			"role", group.ID, "agent_rank", agentRank, "role_rank", group.Position, "skipped", len(toAdd))
		for _, id := range toAdd {
			s.fail(&report, Failure{MemberID: id, Op: OpAdd, Kind: HierarchyViolation, Err: ErrHierarchy})
		}
		return report, nil
	}

	err = s.apply(p, guildID, group.ID, OpAdd, toAdd, nil, &report)
	p.logger.Info("Role create finished.", "added", len(report.Added), "failed", len(report.Failures))
	return report, err
}

// Plan computes the delta Sync would apply, without changing anything.
func (s *Synchronizer) Plan(ctx context.Context, guildID, eventID string) (Delta, error) {
	p, err := s.begin(ctx, "plan", guildID, eventID)
	if err != nil {
		return Delta{}, err
	}
	defer p.done()

	group, err := s.mappedGroup(p, guildID, eventID, false)
	if err != nil {
		return Delta{}, err
	}
	st, err := s.snapshot(p, guildID, eventID, group.ID)
	if err != nil {
		return Delta{}, err
	}
	toAdd, toRemove, unchanged := computeDelta(st.interested, st.current)
	return Delta{
		EventID:   eventID,
		GroupID:   group.ID,
		GroupName: group.Name,
		ToAdd:     toAdd,
		ToRemove:  toRemove,
		Unchanged: unchanged,
	}, nil
}

// PlanCreate computes what Create would do, without changing anything.
func (s *Synchronizer) PlanCreate(ctx context.Context, guildID string, event models.Event) (Delta, error) {
	p, err := s.begin(ctx, "plan", guildID, event.ID)
	if err != nil {
		return Delta{}, err
	}
	defer p.done()

	if _, err := s.mappedGroup(p, guildID, event.ID, false); err == nil {
		return Delta{}, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return Delta{}, err
	}
	interested, err := s.interested(p, guildID, event.ID)
	if err != nil {
		return Delta{}, err
	}
	return Delta{EventID: event.ID, GroupName: GroupName(event.Name), ToAdd: interested.Sorted()}, nil
}

// Sync reconciles the mapped role's members with the event's interested set.
// Additions run before removals. When ctx ends mid-pass, completed mutations
// stay applied, the rest are reported as transient failures, and the context
// error is returned with the partial report.
func (s *Synchronizer) Sync(ctx context.Context, guildID, eventID string) (report Report, err error) {
	start := time.Now()
	defer func() { metrics.RecordPass("sync", time.Since(start), len(report.Failures), err) }()

	p, err := s.begin(ctx, "sync", guildID, eventID)
	if err != nil {
		return Report{}, err
	}
	defer p.done()
	report = Report{CorrelationID: p.id, EventID: eventID}

	group, err := s.mappedGroup(p, guildID, eventID, true)
	if err != nil {
		return report, err
	}
	report.Group = group

	st, err := s.snapshot(p, guildID, eventID, group.ID)
	if err != nil {
		return report, err
	}
	toAdd, toRemove, unchanged := computeDelta(st.interested, st.current)
	report.Unchanged = unchanged
	p.logger.Debug("Computed role delta.", "role", group.ID, "add", len(toAdd), "remove", len(toRemove), "unchanged", unchanged)

	if err := s.apply(p, guildID, group.ID, OpAdd, toAdd, st.dir, &report); err != nil {
		s.abandon(OpRemove, toRemove, err, &report)
		return report, err
	}
	if err := s.apply(p, guildID, group.ID, OpRemove, toRemove, st.dir, &report); err != nil {
		return report, err
	}

	c := report.Counts()
	p.logger.Info("Role sync finished.", "role", group.ID,
		"added", c.Added, "removed", c.Removed, "unchanged", c.Unchanged, "failed", c.Failed)
	return report, nil
}

// Delete removes the event's role and its mapping. A role already deleted on
// the platform counts as success. If the platform refuses the deletion the
// role still exists, so the mapping is kept and the error returned.
func (s *Synchronizer) Delete(ctx context.Context, guildID, eventID, agentID string) (res DeleteResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordPass("delete", time.Since(start), 0, err) }()

	p, err := s.begin(ctx, "delete", guildID, eventID)
	if err != nil {
		return DeleteResult{}, err
	}
	defer p.done()
	res = DeleteResult{CorrelationID: p.id, EventID: eventID}

	groupID, err := s.store.Get(p.ctx, p.ns, eventID)
	if errors.Is(err, mapping.ErrNotFound) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, fmt.Errorf("failed to read role mapping: %w", err)
	}
	res.GroupID = groupID

	reason := "discoops: event role deleted by " + agentLabel(agentID)
	if err := s.groups.DeleteGroup(p.ctx, guildID, groupID, reason); err != nil {
		if !errors.Is(err, platform.ErrNotFound) {
			return res, fmt.Errorf("failed to delete role %s: %w", groupID, err)
		}
		res.AlreadyGone = true
		p.logger.Info("Role was already deleted on the platform.", "role", groupID)
	}

	if err := s.store.Delete(p.ctx, p.ns, eventID); err != nil {
		return res, fmt.Errorf("role deleted but failed to remove mapping: %w", err)
	}
	p.logger.Info("Deleted role.", "role", groupID)
	return res, nil
}

// Mapped returns the server's event→role entries.
func (s *Synchronizer) Mapped(ctx context.Context, guildID string) (map[string]string, error) {
	m, err := s.store.List(ctx, mapping.RoleNamespace(guildID))
	if err != nil {
		return nil, fmt.Errorf("failed to list role mappings: %w", err)
	}
	return m, nil
}

// clearStale fails with ErrAlreadyExists if the event has a live role, and
// drops a mapping that points at a role deleted on the platform.
func (s *Synchronizer) clearStale(p *pass, guildID, eventID string) error {
	_, err := s.mappedGroup(p, guildID, eventID, true)
	switch {
	case err == nil:
		return ErrAlreadyExists
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}

// mappedGroup resolves the event's mapping to a live role. A mapping to a
// deleted role yields ErrNotFound, and is removed when clear is set.
func (s *Synchronizer) mappedGroup(p *pass, guildID, eventID string, clear bool) (models.Group, error) {
	groupID, err := s.store.Get(p.ctx, p.ns, eventID)
	if errors.Is(err, mapping.ErrNotFound) {
		return models.Group{}, ErrNotFound
	}
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to read role mapping: %w", err)
	}

	group, err := s.groups.Group(p.ctx, guildID, groupID)
	if errors.Is(err, platform.ErrNotFound) {
		if clear {
			if derr := s.store.Delete(p.ctx, p.ns, eventID); derr != nil {
				return models.Group{}, fmt.Errorf("failed to clear stale role mapping: %w", derr)
			}
			p.logger.Warn("Cleared mapping to a role that no longer exists.", "role", groupID)
		}
		return models.Group{}, fmt.Errorf("role %s no longer exists: %w", groupID, ErrNotFound)
	}
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to look up role %s: %w", groupID, err)
	}
	return group, nil
}

type snapshot struct {
	dir        models.MemberDirectory
	interested models.MemberSet
	current    models.MemberSet
}

func (s *Synchronizer) snapshot(p *pass, guildID, eventID, groupID string) (snapshot, error) {
	dir, err := s.dir.LoadDirectory(p.ctx, guildID)
	if err != nil {
		return snapshot{}, fmt.Errorf("failed to load member directory: %w", err)
	}
	interested, err := s.fetcher.Fetch(p.ctx, guildID, eventID, dir)
	if err != nil {
		return snapshot{}, err
	}
	current, err := s.groups.GroupMembers(p.ctx, guildID, groupID)
	if err != nil {
		return snapshot{}, fmt.Errorf("failed to list role members: %w", err)
	}
	return snapshot{dir: dir, interested: interested, current: current}, nil
}

func (s *Synchronizer) interested(p *pass, guildID, eventID string) (models.MemberSet, error) {
	dir, err := s.dir.LoadDirectory(p.ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load member directory: %w", err)
	}
	return s.fetcher.Fetch(p.ctx, guildID, eventID, dir)
}

// apply issues one mutation per member, sequentially and paced. Per-member
// failures go into report. A done context stops the batch: the remaining
// members are reported as transient failures and the context error returned.
// A nil dir skips the residency check.
func (s *Synchronizer) apply(p *pass, guildID, groupID string, op Op, ids []string, dir models.MemberDirectory, report *Report) error {
	for i, id := range ids {
		if dir != nil && !dir.Has(id) {
			s.fail(report, Failure{MemberID: id, Op: op, Kind: MemberUnresolvable, Err: ErrNotResident})
			continue
		}
		if err := s.limiter.Wait(p.ctx); err != nil {
			cause := p.ctx.Err()
			if cause == nil {
				cause = err
			}
			s.abandon(op, ids[i:], cause, report)
			p.logger.Warn("Pass interrupted, remaining mutations not attempted.", "op", string(op), "remaining", len(ids)-i, "error", cause)
			return fmt.Errorf("pass interrupted: %w", cause)
		}

		var err error
		if op == OpAdd {
			err = s.groups.AddMember(p.ctx, guildID, groupID, id)
		} else {
			err = s.groups.RemoveMember(p.ctx, guildID, groupID, id)
		}
		if err != nil {
			f := Failure{MemberID: id, Op: op, Kind: classify(err), Err: err}
			s.fail(report, f)
			p.logger.Warn("Membership change failed.", "op", string(op), "member", id, "kind", f.Kind.String(), "error", err)
			continue
		}

		metrics.RecordMutation(string(op), "ok")
		if op == OpAdd {
			report.Added = append(report.Added, id)
		} else {
			report.Removed = append(report.Removed, id)
		}
	}
	return nil
}

func (s *Synchronizer) fail(report *Report, f Failure) {
	report.Failures = append(report.Failures, f)
	metrics.RecordMutation(string(f.Op), f.Kind.String())
}

// abandon records members whose mutation was never attempted.
func (s *Synchronizer) abandon(op Op, ids []string, cause error, report *Report) {
	for _, id := range ids {
		s.fail(report, Failure{MemberID: id, Op: op, Kind: TransientPlatformError, Err: cause})
	}
}

func classify(err error) FailureKind {
	switch {
	case errors.Is(err, platform.ErrForbidden):
		return HierarchyViolation
	case errors.Is(err, platform.ErrUnknownMember):
		return MemberUnresolvable
	default:
		return TransientPlatformError
	}
}

func agentLabel(agentID string) string {
	if agentID == "" {
		return "the bot"
	}
	return "member " + agentID
}
