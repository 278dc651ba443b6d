// Package resolver maps a human-typed event name onto one of the server's
// scheduled events.
//
// Resolution runs in two phases over the caller-supplied order: an exact
// match on the normalized name always wins over a partial (substring) match,
// even when the partial match appears earlier. Ties inside a phase go to the
// first event in input order, so callers sort first (see SortByStart).
package resolver

import (
	"errors"
	"slices"
	"strings"

	"discoops/internal/models"
	"discoops/internal/textnorm"
)

// ErrNotFound is returned when no event matches the query, including when the
// query normalizes to the empty string.
var ErrNotFound = errors.New("event not found")

// MatchKind records which phase produced a match.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchPartial
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchPartial:
		return "partial"
	default:
		return "none"
	}
}

// Resolve returns the best event for query.
func Resolve(events []models.Event, query string) (models.Event, error) {
	matches, _ := Matches(events, query)
	if len(matches) == 0 {
		return models.Event{}, ErrNotFound
	}
	return matches[0], nil
}

// Matches returns every event matched by the winning phase, in input order,
// together with the phase that produced them. Resolve picks the first one; the
// rest let a caller tell the user that the query was ambiguous.
func Matches(events []models.Event, query string) ([]models.Event, MatchKind) {
	nq := textnorm.Normalize(query)
	if nq == "" {
		return nil, MatchNone
	}

	names := make([]string, len(events))
	for i, e := range events {
		names[i] = textnorm.Normalize(e.Name)
	}

	var exact []models.Event
	for i, e := range events {
		if names[i] == nq {
			exact = append(exact, e)
		}
	}
	if len(exact) > 0 {
		return exact, MatchExact
	}

	var partial []models.Event
	for i, e := range events {
		if names[i] != "" && strings.Contains(names[i], nq) {
			partial = append(partial, e)
		}
	}
	if len(partial) > 0 {
		return partial, MatchPartial
	}
	return nil, MatchNone
}

// SortByStart orders events soonest first; events without a start time go last.
// The sort is stable so equal start times keep the platform's order.
func SortByStart(events []models.Event) {
	slices.SortStableFunc(events, func(a, b models.Event) int {
		switch {
		case a.HasStart() && b.HasStart():
			return a.StartTime.Compare(*b.StartTime)
		case a.HasStart():
			return -1
		case b.HasStart():
			return 1
		default:
			return 0
		}
	})
}
