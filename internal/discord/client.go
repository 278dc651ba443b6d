// Package discord implements platform.Client on the Discord REST API.
//
// Scheduled events are the platform's events, roles are the notification
// groups and a role's position is its authority rank. Every call goes through
// one circuit breaker, and every error is classified onto the platform error
// taxonomy before it leaves the package.
package discord

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	gobreaker "github.com/sony/gobreaker/v2"

	"discoops/internal/config"
	"discoops/internal/models"
	"discoops/internal/platform"
)

const (
	interestedPageSize = 100
	membersPageSize    = 1000
)

// Client is a Discord REST client for one bot identity.
type Client struct {
	logger  *slog.Logger
	session *discordgo.Session
	breaker *gobreaker.CircuitBreaker[any]

	selfMu sync.Mutex
	selfID string
}

var _ platform.Client = (*Client)(nil)

// New creates a new Client authenticated with the bot token from cfg. No
// gateway connection is opened.
func New(logger *slog.Logger, cfg config.DiscordConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is not configured")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Client = &http.Client{Timeout: cfg.RequestTimeout}

	return &Client{
		logger:  logger,
		session: session,
		breaker: newBreaker(logger, cfg),
	}, nil
}

// ListEvents returns the server's scheduled events with their interested counts.
func (c *Client) ListEvents(ctx context.Context, guildID string) ([]models.Event, error) {
	raw, err := do(ctx, c, "scheduled_events", func(opts ...discordgo.RequestOption) ([]*discordgo.GuildScheduledEvent, error) {
		return c.session.GuildScheduledEvents(guildID, true, opts...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled events: %w", err)
	}

	events := make([]models.Event, 0, len(raw))
	for _, e := range raw {
		events = append(events, eventFromDiscord(e))
	}
	return events, nil
}

// InterestedUsers pages through the users subscribed to an event.
func (c *Client) InterestedUsers(ctx context.Context, guildID, eventID string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		after := ""
		for {
			page, err := do(ctx, c, "scheduled_event_users", func(opts ...discordgo.RequestOption) ([]*discordgo.GuildScheduledEventUser, error) {
				return c.session.GuildScheduledEventUsers(guildID, eventID, interestedPageSize, false, "", after, opts...)
			})
			if err != nil {
				yield("", fmt.Errorf("failed to fetch interested users of event %s: %w", eventID, err))
				return
			}
			for _, u := range page {
				if u.User == nil {
					continue
				}
				if !yield(u.User.ID, nil) {
					return
				}
				after = u.User.ID
			}
			if len(page) < interestedPageSize {
				return
			}
		}
	}
}

// LoadDirectory snapshots every member of the server.
func (c *Client) LoadDirectory(ctx context.Context, guildID string) (models.MemberDirectory, error) {
	members, err := c.members(ctx, guildID)
	if err != nil {
		return nil, err
	}
	dir := make(models.MemberDirectory, len(members))
	for _, m := range members {
		if m.User == nil {
			continue
		}
		dir[m.User.ID] = memberFromDiscord(m)
	}
	c.logger.Debug("Loaded member directory.", "guild", guildID, "members", len(dir))
	return dir, nil
}

func (c *Client) members(ctx context.Context, guildID string) ([]*discordgo.Member, error) {
	var (
		all   []*discordgo.Member
		after string
	)
	for {
		page, err := do(ctx, c, "guild_members", func(opts ...discordgo.RequestOption) ([]*discordgo.Member, error) {
			return c.session.GuildMembers(guildID, after, membersPageSize, opts...)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list server members: %w", err)
		}
		all = append(all, page...)
		if len(page) < membersPageSize {
			return all, nil
		}
		if last := page[len(page)-1]; last.User != nil {
			after = last.User.ID
		} else {
			return all, nil
		}
	}
}

// Group returns the role with groupID.
func (c *Client) Group(ctx context.Context, guildID, groupID string) (models.Group, error) {
	roles, err := do(ctx, c, "guild_roles", func(opts ...discordgo.RequestOption) ([]*discordgo.Role, error) {
		return c.session.GuildRoles(guildID, opts...)
	})
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to list roles: %w", err)
	}
	for _, r := range roles {
		if r.ID == groupID {
			return groupFromRole(r), nil
		}
	}
	return models.Group{}, fmt.Errorf("role %s: %w", groupID, platform.ErrNotFound)
}

// GroupMembers returns the members holding the role. Discord has no role
// member listing, so this scans the server's members.
func (c *Client) GroupMembers(ctx context.Context, guildID, groupID string) (models.MemberSet, error) {
	members, err := c.members(ctx, guildID)
	if err != nil {
		return nil, err
	}
	set := make(models.MemberSet)
	for _, m := range members {
		if m.User != nil && hasRole(m, groupID) {
			set.Add(m.User.ID)
		}
	}
	return set, nil
}

// CreateGroup creates a role. Discord places new roles at position 1.
func (c *Client) CreateGroup(ctx context.Context, guildID string, spec models.GroupSpec) (models.Group, error) {
	params := &discordgo.RoleParams{
		Name:        spec.Name,
		Color:       &spec.Color,
		Mentionable: &spec.Mentionable,
	}
	role, err := do(ctx, c, "role_create", func(opts ...discordgo.RequestOption) (*discordgo.Role, error) {
		return c.session.GuildRoleCreate(guildID, params, append(opts, discordgo.WithAuditLogReason(spec.Reason))...)
	})
	if err != nil {
		return models.Group{}, err
	}
	return groupFromRole(role), nil
}

// DeleteGroup deletes a role.
func (c *Client) DeleteGroup(ctx context.Context, guildID, groupID, reason string) error {
	return exec(ctx, c, "role_delete", func(opts ...discordgo.RequestOption) error {
		return c.session.GuildRoleDelete(guildID, groupID, append(opts, discordgo.WithAuditLogReason(reason))...)
	})
}

// AddMember grants the role to a member.
func (c *Client) AddMember(ctx context.Context, guildID, groupID, memberID string) error {
	return exec(ctx, c, "member_role_add", func(opts ...discordgo.RequestOption) error {
		return c.session.GuildMemberRoleAdd(guildID, memberID, groupID, opts...)
	})
}

// RemoveMember takes the role from a member.
func (c *Client) RemoveMember(ctx context.Context, guildID, groupID, memberID string) error {
	return exec(ctx, c, "member_role_remove", func(opts ...discordgo.RequestOption) error {
		return c.session.GuildMemberRoleRemove(guildID, memberID, groupID, opts...)
	})
}

// AgentRank returns the highest role position of agentID, or of the bot when
// agentID is empty. The bot issues every mutation, so an agent's rank is
// capped at the bot's. The server owner outranks every role.
func (c *Client) AgentRank(ctx context.Context, guildID, agentID string) (int, error) {
	guild, err := do(ctx, c, "guild", func(opts ...discordgo.RequestOption) (*discordgo.Guild, error) {
		return c.session.Guild(guildID, opts...)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch server: %w", err)
	}

	selfID, err := c.self(ctx)
	if err != nil {
		return 0, err
	}
	botRank, err := c.memberRank(ctx, guild, selfID)
	if err != nil {
		return 0, err
	}
	if agentID == "" || agentID == selfID {
		return botRank, nil
	}

	agentRank, err := c.memberRank(ctx, guild, agentID)
	if err != nil {
		return 0, err
	}
	return min(botRank, agentRank), nil
}

func (c *Client) memberRank(ctx context.Context, guild *discordgo.Guild, userID string) (int, error) {
	if userID == guild.OwnerID {
		return math.MaxInt, nil
	}
	m, err := do(ctx, c, "guild_member", func(opts ...discordgo.RequestOption) (*discordgo.Member, error) {
		return c.session.GuildMember(guild.ID, userID, opts...)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch member %s: %w", userID, err)
	}
	return rank(guild.Roles, m), nil
}

func (c *Client) self(ctx context.Context) (string, error) {
	c.selfMu.Lock()
	defer c.selfMu.Unlock()
	if c.selfID != "" {
		return c.selfID, nil
	}

	u, err := do(ctx, c, "current_user", func(opts ...discordgo.RequestOption) (*discordgo.User, error) {
		return c.session.User("@me", opts...)
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	c.selfID = u.ID
	return c.selfID, nil
}
