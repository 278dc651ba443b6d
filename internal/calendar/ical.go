package calendar

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"discoops/internal/models"
)

const productID = "-//discoops//EN"

// Encode writes entry as a single-event iCalendar document.
func Encode(w io.Writer, entry Entry) error {
	if err := ical.NewEncoder(w).Encode(newCalendar(entry)); err != nil {
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	return nil
}

func newCalendar(entry Entry) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, toICal(entry))
	return cal
}

// toICal converts an entry to a VEVENT. Attendees carry their display name
// and a discord user URN, since members have no mail address.
func toICal(entry Entry) *ical.Component {
	ev := entry.Event

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, entry.UID)
	ve.Props.SetText(ical.PropSummary, ev.Name)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, entry.Start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, entry.End.UTC())

	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if loc := location(entry); loc != "" {
		ve.Props.SetText(ical.PropLocation, loc)
	}
	if entry.GuildID != "" {
		u := ical.NewProp(ical.PropURL)
		u.Value = EventURL(entry.GuildID, ev.ID)
		ve.Props.Set(u)
	}

	status := "CONFIRMED"
	if ev.Status == models.EventCanceled {
		status = "CANCELLED"
	}
	ve.Props.SetText(ical.PropStatus, status)

	for _, a := range entry.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "urn:discord:user:" + a.ID
		p.Params.Set(ical.ParamCommonName, a.Name)
		p.Params.Set("PARTSTAT", "TENTATIVE")
		ve.Props.Add(p)
	}
	return ve
}

func location(entry Entry) string {
	ev := entry.Event
	switch {
	case ev.Location != "":
		return ev.Location
	case ev.ChannelID != "" && entry.GuildID != "":
		return "https://discord.com/channels/" + entry.GuildID + "/" + ev.ChannelID
	default:
		return ""
	}
}
