// Package platformtest provides an in-memory platform.Client for tests, with
// per-member and per-operation failure injection.
package platformtest

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"sync"

	"discoops/internal/models"
	"discoops/internal/platform"
)

// Call records one mutation issued against the fake.
type Call struct {
	Op       string // create, delete, add, remove
	GroupID  string
	MemberID string
}

type group struct {
	models.Group
	members models.MemberSet
}

// Fake is a single-server platform held in memory. The guildID arguments of
// the platform.Client methods are accepted and ignored.
type Fake struct {
	mu sync.Mutex

	events     []models.Event
	interested map[string][]string
	directory  models.MemberDirectory
	groups     map[string]*group
	ranks      map[string]int
	nextID     int
	calls      []Call

	// AgentRankDefault is returned for agents without an explicit rank.
	AgentRankDefault int
	// PageSize splits InterestedUsers into pages; zero means one page.
	PageSize int
	// Pages counts the interested-user pages served.
	Pages int

	// Injected failures. Member keyed maps apply to add/remove of that member.
	AddErr          map[string]error
	RemoveErr       map[string]error
	CreateErr       error
	DeleteErr       error
	ListErr         error
	DirectoryErr    error
	GroupMembersErr error
	// InterestedErr is yielded after InterestedErrAfter ids have been yielded.
	InterestedErr      error
	InterestedErrAfter int

	// OnCreate runs before CreateGroup mutates state, outside the fake's lock.
	OnCreate func()
	// OnMutation runs before every add/remove, outside the fake's lock.
	OnMutation func(Call)
}

// New returns an empty fake whose own identity outranks every group it creates.
func New() *Fake {
	return &Fake{
		interested:       make(map[string][]string),
		directory:        make(models.MemberDirectory),
		groups:           make(map[string]*group),
		ranks:            make(map[string]int),
		AgentRankDefault: 100,
		AddErr:           make(map[string]error),
		RemoveErr:        make(map[string]error),
	}
}

var _ platform.Client = (*Fake)(nil)

// AddEvent registers an event with its interested user ids.
func (f *Fake) AddEvent(e models.Event, interested ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	f.interested[e.ID] = interested
}

// SetInterested replaces the interested user ids of an event.
func (f *Fake) SetInterested(eventID string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interested[eventID] = ids
}

// AddMembers makes the given members cache-resident.
func (f *Fake) AddMembers(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.directory[id] = models.Member{ID: id, DisplayName: "member " + id}
	}
}

// EvictMember removes a member from the membership cache.
func (f *Fake) EvictMember(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.directory, id)
}

// SetRank sets the authority rank of an agent.
func (f *Fake) SetRank(agentID string, rank int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranks[agentID] = rank
}

// SeedGroup creates a group directly, bypassing injected failures and call recording.
func (f *Fake) SeedGroup(name string, position int, members ...string) models.Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.newGroupLocked(models.GroupSpec{Name: name})
	g.Position = position
	for _, m := range members {
		g.members.Add(m)
	}
	return g.Group
}

// DropGroup deletes a group as if an operator removed it by hand.
func (f *Fake) DropGroup(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, id)
}

// Members returns the current members of a group, or nil when it does not exist.
func (f *Fake) Members(groupID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return nil
	}
	return g.members.Sorted()
}

// HasGroup reports whether the group exists.
func (f *Fake) HasGroup(groupID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.groups[groupID]
	return ok
}

// GroupCount returns the number of live groups.
func (f *Fake) GroupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.groups)
}

// Calls returns the mutations issued so far, in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// ResetCalls clears the recorded mutations.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) ListEvents(ctx context.Context, guildID string) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]models.Event(nil), f.events...), nil
}

func (f *Fake) InterestedUsers(ctx context.Context, guildID, eventID string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.mu.Lock()
		ids := append([]string(nil), f.interested[eventID]...)
		pageSize := f.PageSize
		failErr, failAfter := f.InterestedErr, f.InterestedErrAfter
		f.mu.Unlock()

		if pageSize <= 0 {
			pageSize = len(ids) + 1
		}
		for i, id := range ids {
			if i%pageSize == 0 {
				if err := ctx.Err(); err != nil {
					yield("", err)
					return
				}
				f.mu.Lock()
				f.Pages++
				f.mu.Unlock()
			}
			if failErr != nil && i == failAfter {
				yield("", failErr)
				return
			}
			if !yield(id, nil) {
				return
			}
		}
		if failErr != nil && failAfter >= len(ids) {
			yield("", failErr)
		}
	}
}

func (f *Fake) LoadDirectory(ctx context.Context, guildID string) (models.MemberDirectory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DirectoryErr != nil {
		return nil, f.DirectoryErr
	}
	out := make(models.MemberDirectory, len(f.directory))
	for id, m := range f.directory {
		out[id] = m
	}
	return out, nil
}

func (f *Fake) Group(ctx context.Context, guildID, groupID string) (models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return models.Group{}, fmt.Errorf("group %s: %w", groupID, platform.ErrNotFound)
	}
	return g.Group, nil
}

func (f *Fake) GroupMembers(ctx context.Context, guildID, groupID string) (models.MemberSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GroupMembersErr != nil {
		return nil, f.GroupMembersErr
	}
	g, ok := f.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, platform.ErrNotFound)
	}
	return models.NewMemberSet(g.members.Sorted()...), nil
}

func (f *Fake) CreateGroup(ctx context.Context, guildID string, spec models.GroupSpec) (models.Group, error) {
	if f.OnCreate != nil {
		f.OnCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return models.Group{}, f.CreateErr
	}
	g := f.newGroupLocked(spec)
	f.calls = append(f.calls, Call{Op: "create", GroupID: g.ID})
	return g.Group, nil
}

func (f *Fake) DeleteGroup(ctx context.Context, guildID, groupID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "delete", GroupID: groupID})
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.groups[groupID]; !ok {
		return fmt.Errorf("group %s: %w", groupID, platform.ErrNotFound)
	}
	delete(f.groups, groupID)
	return nil
}

func (f *Fake) AddMember(ctx context.Context, guildID, groupID, memberID string) error {
	return f.mutate(ctx, Call{Op: "add", GroupID: groupID, MemberID: memberID})
}

func (f *Fake) RemoveMember(ctx context.Context, guildID, groupID, memberID string) error {
	return f.mutate(ctx, Call{Op: "remove", GroupID: groupID, MemberID: memberID})
}

func (f *Fake) AgentRank(ctx context.Context, guildID, agentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.ranks[agentID]; ok {
		return r, nil
	}
	return f.AgentRankDefault, nil
}

func (f *Fake) mutate(ctx context.Context, c Call) error {
	if f.OnMutation != nil {
		f.OnMutation(c)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)

	errs := f.AddErr
	if c.Op == "remove" {
		errs = f.RemoveErr
	}
	if err := errs[c.MemberID]; err != nil {
		return err
	}
	g, ok := f.groups[c.GroupID]
	if !ok {
		return fmt.Errorf("group %s: %w", c.GroupID, platform.ErrNotFound)
	}
	if c.Op == "add" {
		g.members.Add(c.MemberID)
	} else {
		delete(g.members, c.MemberID)
	}
	return nil
}

func (f *Fake) newGroupLocked(spec models.GroupSpec) *group {
	f.nextID++
	g := &group{
		Group: models.Group{
			ID:          "g" + strconv.Itoa(f.nextID),
			Name:        spec.Name,
			Position:    1,
			Color:       spec.Color,
			Mentionable: spec.Mentionable,
		},
		members: make(models.MemberSet),
	}
	f.groups[g.ID] = g
	return g
}
