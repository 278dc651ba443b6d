package models

import "slices"

// Member is a community member as seen in the local membership cache.
type Member struct {
	ID          string
	DisplayName string
	Bot         bool
	RoleIDs     []string
}

// MemberSet is a set of member identifiers.
type MemberSet map[string]struct{}

// NewMemberSet builds a set from the given identifiers.
func NewMemberSet(ids ...string) MemberSet {
	s := make(MemberSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s MemberSet) Add(id string) {
	s[id] = struct{}{}
}

// Has reports whether id is in the set.
func (s MemberSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Minus returns the members of s that are not in other.
func (s MemberSet) Minus(other MemberSet) MemberSet {
	out := make(MemberSet)
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Intersect returns the members present in both sets.
func (s MemberSet) Intersect(other MemberSet) MemberSet {
	out := make(MemberSet)
	for id := range s {
		if other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns the identifiers in ascending order so mutation order and reports are deterministic.
func (s MemberSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MemberDirectory is a point-in-time snapshot of the cache-resident members of one server, keyed by id.
type MemberDirectory map[string]Member

// Has reports whether the member is resident in the snapshot.
func (d MemberDirectory) Has(id string) bool {
	_, ok := d[id]
	return ok
}

// DisplayName returns the member's display name, or the id when the member is unknown.
func (d MemberDirectory) DisplayName(id string) string {
	if m, ok := d[id]; ok && m.DisplayName != "" {
		return m.DisplayName
	}
	return id
}
