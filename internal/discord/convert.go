package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"

	"discoops/internal/models"
)

func eventFromDiscord(e *discordgo.GuildScheduledEvent) models.Event {
	ev := models.Event{
		ID:              e.ID,
		Name:            e.Name,
		Description:     e.Description,
		Location:        e.EntityMetadata.Location,
		ChannelID:       e.ChannelID,
		Status:          eventStatus(e.Status),
		InterestedCount: e.UserCount,
	}
	if !e.ScheduledStartTime.IsZero() {
		start := e.ScheduledStartTime
		ev.StartTime = &start
	}
	if e.ScheduledEndTime != nil && !e.ScheduledEndTime.IsZero() {
		end := *e.ScheduledEndTime
		ev.EndTime = &end
	}
	return ev
}

func eventStatus(s discordgo.GuildScheduledEventStatus) models.EventStatus {
	switch s {
	case discordgo.GuildScheduledEventStatusScheduled:
		return models.EventScheduled
	case discordgo.GuildScheduledEventStatusActive:
		return models.EventActive
	case discordgo.GuildScheduledEventStatusCompleted:
		return models.EventCompleted
	case discordgo.GuildScheduledEventStatusCanceled:
		return models.EventCanceled
	default:
		return models.EventUnknown
	}
}

func memberFromDiscord(m *discordgo.Member) models.Member {
	return models.Member{
		ID:          m.User.ID,
		DisplayName: displayName(m),
		Bot:         m.User.Bot,
		RoleIDs:     slices.Clone(m.Roles),
	}
}

// displayName prefers the server nickname, then the global name, then the username.
func displayName(m *discordgo.Member) string {
	switch {
	case m.Nick != "":
		return m.Nick
	case m.User == nil:
		return ""
	case m.User.GlobalName != "":
		return m.User.GlobalName
	default:
		return m.User.Username
	}
}

func groupFromRole(r *discordgo.Role) models.Group {
	return models.Group{
		ID:          r.ID,
		Name:        r.Name,
		Position:    r.Position,
		Color:       r.Color,
		Mentionable: r.Mentionable,
	}
}

func hasRole(m *discordgo.Member, roleID string) bool {
	return slices.Contains(m.Roles, roleID)
}

// rank is the highest position among the member's roles. Every member holds
// @everyone at position 0.
func rank(roles []*discordgo.Role, m *discordgo.Member) int {
	best := 0
	for _, r := range roles {
		if r.Position > best && hasRole(m, r.ID) {
			best = r.Position
		}
	}
	return best
}
