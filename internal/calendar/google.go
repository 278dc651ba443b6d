package calendar

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"discoops/internal/config"
)

// GooglePublisher writes entries into one Google calendar.
type GooglePublisher struct {
	service    *gcal.Service
	logger     *slog.Logger
	calendarID string
}

// NewGooglePublisher creates a publisher authorized by the token saved by the auth command.
func NewGooglePublisher(ctx context.Context, logger *slog.Logger, cfg config.GoogleConfig) (*GooglePublisher, error) {
	oauthCfg, err := OAuthConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	token, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token from %s: %w. Please run the 'calendar auth' command first", cfg.TokenFile, err)
	}

	service, err := gcal.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return newGooglePublisher(logger, service, cfg.CalendarID), nil
}

func newGooglePublisher(logger *slog.Logger, service *gcal.Service, calendarID string) *GooglePublisher {
	return &GooglePublisher{service: service, logger: logger, calendarID: calendarID}
}

// Name identifies the target in mirror state.
func (p *GooglePublisher) Name() string { return "google" }

// Publish updates the event remoteID, or inserts a new one when remoteID is
// empty or was deleted from the calendar. It returns the Google event id.
func (p *GooglePublisher) Publish(ctx context.Context, entry Entry, remoteID string) (string, error) {
	ev := toGoogle(entry)

	if remoteID != "" {
		updated, err := p.service.Events.Update(p.calendarID, remoteID, ev).Context(ctx).Do()
		if err == nil {
			p.logger.Info("Successfully updated Google Calendar event.", "event", entry.Event.ID, "id", updated.Id)
			return updated.Id, nil
		}
		if !isGone(err) {
			return "", fmt.Errorf("failed to update google event %s: %w", remoteID, err)
		}
		p.logger.Warn("Google Calendar event is gone, inserting a new one.", "event", entry.Event.ID, "id", remoteID)
	}

	created, err := p.service.Events.Insert(p.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert google event: %w", err)
	}
	p.logger.Info("Successfully created Google Calendar event.", "event", entry.Event.ID, "id", created.Id)
	return created.Id, nil
}

// toGoogle converts an entry to a Google event. Google attendees need a mail
// address, so interested members are listed in the description instead.
func toGoogle(entry Entry) *gcal.Event {
	desc := entry.Event.Description
	if len(entry.Attendees) > 0 {
		names := make([]string, len(entry.Attendees))
		for i, a := range entry.Attendees {
			names[i] = a.Name
		}
		if desc != "" {
			desc += "\n\n"
		}
		desc += fmt.Sprintf("Interested (%d): %s", len(names), strings.Join(names, ", "))
	}

	ev := &gcal.Event{
		Summary:     entry.Event.Name,
		Description: desc,
		Location:    location(entry),
		Start:       &gcal.EventDateTime{DateTime: entry.Start.Format(time.RFC3339), TimeZone: entry.Start.Location().String()},
		End:         &gcal.EventDateTime{DateTime: entry.End.Format(time.RFC3339), TimeZone: entry.End.Location().String()},
	}
	if entry.GuildID != "" {
		ev.Source = &gcal.EventSource{Title: "Discord", Url: EventURL(entry.GuildID, entry.Event.ID)}
	}
	return ev
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}

// OAuthConfig returns the OAuth2 config for the calendar events scope.
// Client id and secret from the configuration take precedence over the
// credentials file.
func OAuthConfig(cfg config.GoogleConfig) (*oauth2.Config, error) {
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{gcal.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s not found. Please set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET or provide the credentials file", cfg.CredentialsFile)
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(b, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	oauthCfg.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	return oauthCfg, nil
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("unable to write token file: %w", err)
	}
	return nil
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, err
	}
	return tok, nil
}
