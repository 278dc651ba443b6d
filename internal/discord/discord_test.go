package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	gobreaker "github.com/sony/gobreaker/v2"

	"discoops/internal/config"
	"discoops/internal/models"
	"discoops/internal/platform"
)

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response:     &http.Response{StatusCode: status},
		ResponseBody: []byte(`{}`),
		Message:      &discordgo.APIErrorMessage{Code: code, Message: "test"},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error // nil means transient
	}{
		{name: "unknown role", err: restError(404, codeUnknownRole), want: platform.ErrNotFound},
		{name: "unknown event", err: restError(404, codeUnknownScheduledEvent), want: platform.ErrNotFound},
		{name: "unknown member", err: restError(404, codeUnknownMember), want: platform.ErrUnknownMember},
		{name: "unknown user", err: restError(404, codeUnknownUser), want: platform.ErrUnknownMember},
		{name: "missing permissions", err: restError(403, codeMissingPermissions), want: platform.ErrForbidden},
		{name: "bare 403", err: restError(403, 0), want: platform.ErrForbidden},
		{name: "bare 404", err: restError(404, 0), want: platform.ErrNotFound},
		{name: "server error", err: restError(502, 0)},
		{name: "rate limited", err: restError(429, 0)},
		{name: "network", err: errors.New("connection reset by peer")},
		{name: "circuit open", err: gobreaker.ErrOpenState},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			if !errors.Is(got, tc.err) {
				t.Fatalf("classify dropped the original error: %v", got)
			}
			if tc.want == nil {
				if !platform.IsTransient(got) {
					t.Fatalf("classify(%v) = %v, want transient", tc.err, got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Fatalf("classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}

	if classify(nil) != nil {
		t.Fatalf("classify(nil) should be nil")
	}
}

func TestOutcome(t *testing.T) {
	tests := map[string]error{
		"ok":             nil,
		"not_found":      fmt.Errorf("x: %w", platform.ErrNotFound),
		"forbidden":      platform.ErrForbidden,
		"unknown_member": platform.ErrUnknownMember,
		"canceled":       context.Canceled,
		"transient":      errors.New("boom"),
	}
	for want, err := range tests {
		if got := outcome(err); got != want {
			t.Errorf("outcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func testClient(failures uint32) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Client{
		logger:  logger,
		breaker: newBreaker(logger, config.DiscordConfig{BreakerFailures: failures, BreakerTimeout: time.Minute}),
	}
}

func TestBreakerTripsOnTransientFailures(t *testing.T) {
	c := testClient(3)
	ctx := context.Background()
	calls := 0
	failing := func(...discordgo.RequestOption) error {
		calls++
		return restError(503, 0)
	}

	for range 3 {
		if err := exec(ctx, c, "test", failing); err == nil {
			t.Fatalf("exec should fail")
		}
	}
	if got := c.breaker.State(); got != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	err := exec(ctx, c, "test", failing)
	if !errors.Is(err, gobreaker.ErrOpenState) || !platform.IsTransient(err) {
		t.Fatalf("exec on open breaker = %v, want transient ErrOpenState", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3: an open breaker must not reach Discord", calls)
	}
}

func TestBreakerIgnoresDefiniteAnswers(t *testing.T) {
	c := testClient(2)
	ctx := context.Background()

	for range 5 {
		err := exec(ctx, c, "test", func(...discordgo.RequestOption) error {
			return restError(403, codeMissingPermissions)
		})
		if !errors.Is(err, platform.ErrForbidden) {
			t.Fatalf("exec = %v, want ErrForbidden", err)
		}
	}
	if got := c.breaker.State(); got != gobreaker.StateClosed {
		t.Fatalf("breaker state = %v, want closed", got)
	}
}

func TestDoReturnsResult(t *testing.T) {
	c := testClient(3)
	got, err := do(context.Background(), c, "test", func(opts ...discordgo.RequestOption) ([]string, error) {
		if len(opts) != 1 {
			t.Errorf("opts = %d, want the context option", len(opts))
		}
		return []string{"a"}, nil
	})
	if err != nil || len(got) != 1 || got[0] != "a" {
		t.Fatalf("do = %v, %v", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := do(ctx, c, "test", func(...discordgo.RequestOption) (int, error) {
		t.Fatalf("canceled context must not reach Discord")
		return 0, nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("do with canceled ctx = %v", err)
	}
}

func TestEventFromDiscord(t *testing.T) {
	start := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	ev := eventFromDiscord(&discordgo.GuildScheduledEvent{
		ID:                 "e1",
		Name:               "Game Night",
		Description:        "bring snacks",
		ScheduledStartTime: start,
		ScheduledEndTime:   &end,
		Status:             discordgo.GuildScheduledEventStatusScheduled,
		EntityMetadata:     discordgo.GuildScheduledEventEntityMetadata{Location: "Pub"},
		UserCount:          7,
	})

	if ev.ID != "e1" || ev.Name != "Game Night" || ev.Location != "Pub" || ev.InterestedCount != 7 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Status != models.EventScheduled {
		t.Fatalf("status = %q, want scheduled", ev.Status)
	}
	if !ev.HasStart() || !ev.StartTime.Equal(start) || ev.EndTime == nil || !ev.EndTime.Equal(end) {
		t.Fatalf("times = %v, %v", ev.StartTime, ev.EndTime)
	}

	open := eventFromDiscord(&discordgo.GuildScheduledEvent{ID: "e2", Status: 99})
	if open.HasStart() || open.EndTime != nil || open.Status != models.EventUnknown {
		t.Fatalf("event without times = %+v", open)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name   string
		member *discordgo.Member
		want   string
	}{
		{"nick", &discordgo.Member{Nick: "Ace", User: &discordgo.User{Username: "ace42", GlobalName: "Ace G"}}, "Ace"},
		{"global", &discordgo.Member{User: &discordgo.User{Username: "ace42", GlobalName: "Ace G"}}, "Ace G"},
		{"username", &discordgo.Member{User: &discordgo.User{Username: "ace42"}}, "ace42"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := displayName(tc.member); got != tc.want {
				t.Fatalf("displayName = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRank(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "everyone", Position: 0},
		{ID: "event", Position: 1},
		{ID: "mod", Position: 5},
		{ID: "admin", Position: 9},
	}
	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{"no roles", nil, 0},
		{"one role", []string{"event"}, 1},
		{"highest wins", []string{"event", "mod"}, 5},
		{"unknown role ignored", []string{"gone", "mod"}, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := rank(roles, &discordgo.Member{Roles: tc.roles}); got != tc.want {
				t.Fatalf("rank = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestOwnerOutranksEveryRole(t *testing.T) {
	c := testClient(3)
	guild := &discordgo.Guild{ID: "g", OwnerID: "owner"}
	got, err := c.memberRank(context.Background(), guild, "owner")
	if err != nil || got != math.MaxInt {
		t.Fatalf("memberRank(owner) = %d, %v, want MaxInt", got, err)
	}
}
