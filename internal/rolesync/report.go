package rolesync

import (
	"errors"
	"fmt"

	"discoops/internal/models"
)

// Op is a membership mutation.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// FailureKind classifies a per-member failure.
type FailureKind int

const (
	// HierarchyViolation: the acting identity does not outrank the role.
	HierarchyViolation FailureKind = iota + 1
	// TransientPlatformError: network, rate limit or outage; a later sync may succeed.
	TransientPlatformError
	// MemberUnresolvable: the member is not in the membership cache or has left the server.
	MemberUnresolvable
)

func (k FailureKind) String() string {
	switch k {
	case HierarchyViolation:
		return "hierarchy_violation"
	case TransientPlatformError:
		return "transient"
	case MemberUnresolvable:
		return "member_unresolvable"
	default:
		return "unknown"
	}
}

// ErrHierarchy is the cause recorded when a mutation is skipped because the
// acting identity does not outrank the role.
var ErrHierarchy = errors.New("acting identity does not outrank the role")

// ErrNotResident is the cause recorded when a member is missing from the membership cache.
var ErrNotResident = errors.New("member is not in the membership cache")

// Failure is one membership mutation that did not happen.
type Failure struct {
	MemberID string
	Op       Op
	Kind     FailureKind
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", f.Op, f.MemberID, f.Kind, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Report is the outcome of a create or sync pass.
type Report struct {
	CorrelationID string
	EventID       string
	Group         models.Group
	Added         []string
	Removed       []string
	Unchanged     int
	Failures      []Failure
}

// Counts summarizes a report.
type Counts struct {
	Added     int
	Removed   int
	Unchanged int
	Failed    int
}

// Counts returns the added/removed/unchanged/failed totals.
func (r Report) Counts() Counts {
	return Counts{
		Added:     len(r.Added),
		Removed:   len(r.Removed),
		Unchanged: r.Unchanged,
		Failed:    len(r.Failures),
	}
}

// FailedIDs returns the member ids of all failures, in the order they happened.
func (r Report) FailedIDs() []string {
	ids := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		ids[i] = f.MemberID
	}
	return ids
}

// FailuresOf returns the failures of one kind.
func (r Report) FailuresOf(kind FailureKind) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// HasHierarchyViolation reports whether any mutation failed for lack of authority.
func (r Report) HasHierarchyViolation() bool {
	return len(r.FailuresOf(HierarchyViolation)) > 0
}

// HierarchyRemediation tells an operator how to fix a hierarchy violation.
func HierarchyRemediation(roleName string) string {
	return fmt.Sprintf("Move the bot's role above %q in Server Settings → Roles, then run sync.", roleName)
}

// Delta is the membership change a sync pass would apply.
type Delta struct {
	EventID   string
	GroupID   string // empty when the role does not exist yet
	GroupName string
	ToAdd     []string
	ToRemove  []string
	Unchanged int
}

// Empty reports whether applying the delta would change nothing.
func (d Delta) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// DeleteResult is the outcome of a delete pass.
type DeleteResult struct {
	CorrelationID string
	EventID       string
	GroupID       string
	// AlreadyGone is set when the role had been deleted on the platform already.
	AlreadyGone bool
}

func computeDelta(interested, current models.MemberSet) (toAdd, toRemove []string, unchanged int) {
	return interested.Minus(current).Sorted(), current.Minus(interested).Sorted(), len(interested.Intersect(current))
}
