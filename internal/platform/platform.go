// Package platform defines the narrow contracts the engine consumes from the
// community-chat platform, and the error taxonomy every adapter must map its
// failures onto.
package platform

import (
	"context"
	"errors"
	"iter"

	"discoops/internal/models"
)

// Classified platform errors. Adapters wrap the underlying error with one of
// these; any error that matches none of them is treated as transient.
var (
	// ErrNotFound means the target (event, group) does not exist on the platform.
	ErrNotFound = errors.New("platform: not found")
	// ErrForbidden means the acting identity lacks authority for the mutation.
	ErrForbidden = errors.New("platform: forbidden")
	// ErrUnknownMember means the member is no longer part of the server.
	ErrUnknownMember = errors.New("platform: unknown member")
)

// IsTransient reports whether err is a failure a later retry could fix.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrForbidden) &&
		!errors.Is(err, ErrUnknownMember)
}

// MemberCache answers whether a member is resident in the local membership cache.
type MemberCache interface {
	Has(memberID string) bool
}

// EventSource lists scheduled events and their interested users.
type EventSource interface {
	ListEvents(ctx context.Context, guildID string) ([]models.Event, error)

	// InterestedUsers yields the ids of users marked interested in an event.
	// The sequence is lazy and finite; iterating it again restarts the
	// underlying pagination from the first page.
	InterestedUsers(ctx context.Context, guildID, eventID string) iter.Seq2[string, error]
}

// Directory loads a snapshot of the members resident in the membership cache.
type Directory interface {
	LoadDirectory(ctx context.Context, guildID string) (models.MemberDirectory, error)
}

// GroupManager owns notification groups and their membership.
type GroupManager interface {
	// Group returns the group, or an error wrapping ErrNotFound when it is gone.
	Group(ctx context.Context, guildID, groupID string) (models.Group, error)
	GroupMembers(ctx context.Context, guildID, groupID string) (models.MemberSet, error)
	CreateGroup(ctx context.Context, guildID string, spec models.GroupSpec) (models.Group, error)
	DeleteGroup(ctx context.Context, guildID, groupID, reason string) error
	AddMember(ctx context.Context, guildID, groupID, memberID string) error
	RemoveMember(ctx context.Context, guildID, groupID, memberID string) error

	// AgentRank returns the management authority of an acting identity. An
	// empty agentID means the platform client's own identity. Ranks compare
	// with models.Group.Position: an agent may only manage groups ranked
	// strictly below it.
	AgentRank(ctx context.Context, guildID, agentID string) (int, error)
}

// Client is everything the engine needs from a platform.
type Client interface {
	EventSource
	Directory
	GroupManager
}
