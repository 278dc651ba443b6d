// Package calendar exports Discord scheduled events as calendar entries and
// mirrors them, with their interested members, to external calendars.
package calendar

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"discoops/internal/models"
)

// ErrNoStart is returned for events without a start time; they have no place on a calendar.
var ErrNoStart = errors.New("event has no start time")

// uidNamespace scopes the deterministic entry UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://discord.com/events"))

// Attendee is an interested member listed on a calendar entry.
type Attendee struct {
	ID   string
	Name string
}

// Attendees resolves member ids to attendees using the directory's display names.
func Attendees(ids []string, dir models.MemberDirectory) []Attendee {
	out := make([]Attendee, 0, len(ids))
	for _, id := range ids {
		out = append(out, Attendee{ID: id, Name: dir.DisplayName(id)})
	}
	return out
}

// Entry is an event ready to be written to a calendar.
type Entry struct {
	UID       string
	GuildID   string
	Event     models.Event
	Start     time.Time
	End       time.Time
	Attendees []Attendee
}

// NewEntry builds the calendar entry for an event. Times are expressed in
// loc, and events without an end last defaultDuration.
func NewEntry(guildID string, event models.Event, attendees []Attendee, loc *time.Location, defaultDuration time.Duration) (Entry, error) {
	if !event.HasStart() {
		return Entry{}, ErrNoStart
	}
	if loc == nil {
		loc = time.UTC
	}

	start := event.StartTime.In(loc)
	end := start.Add(defaultDuration)
	if event.EndTime != nil && event.EndTime.After(*event.StartTime) {
		end = event.EndTime.In(loc)
	}

	return Entry{
		UID:       UID(guildID, event.ID),
		GuildID:   guildID,
		Event:     event,
		Start:     start,
		End:       end,
		Attendees: attendees,
	}, nil
}

// UID returns the stable calendar UID of an event. Exporting the same event
// twice yields the same UID, so calendar clients update instead of duplicating.
func UID(guildID, eventID string) string {
	return uuid.NewSHA1(uidNamespace, []byte(guildID+"/"+eventID)).String()
}

// EventURL links to the event in the Discord client.
func EventURL(guildID, eventID string) string {
	return "https://discord.com/events/" + guildID + "/" + eventID
}
