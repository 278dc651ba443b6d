package models

import "time"

// EventStatus mirrors the lifecycle states a scheduled event moves through on the platform.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
	EventCanceled  EventStatus = "canceled"
	EventUnknown   EventStatus = "unknown"
)

// Event represents a scheduled community event.
// This is an internal representation, independent of any specific chat platform.
// Optional platform attributes are explicit: a nil pointer or empty string means absent.
type Event struct {
	ID              string      // Opaque, stable identifier assigned by the platform
	Name            string      // Display name, free text and not guaranteed unique
	Description     string      // Optional description
	StartTime       *time.Time  // Scheduled start, nil when the platform did not report one
	EndTime         *time.Time  // Scheduled end, nil when open-ended
	Location        string      // Free-text location for external events
	ChannelID       string      // Voice/stage channel for channel-hosted events
	Status          EventStatus // Lifecycle state as reported by the platform
	InterestedCount int         // Advisory interested count; may diverge from the materialized set
}

// HasStart reports whether the event carries a start time.
func (e Event) HasStart() bool {
	return e.StartTime != nil && !e.StartTime.IsZero()
}
