package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"discoops/internal/config"
)

// basicAuthTransport adds Basic Auth and the client's user agent to each request.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.Username != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}
	req.Header.Set("User-Agent", "discoops/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVPublisher writes entries into one calendar collection on a CalDAV server.
type CalDAVPublisher struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	calendarPath string
}

// NewCalDAVPublisher connects to the server at cfg.URL. With a calendar name
// configured the collection is discovered by name, otherwise cfg.URL must
// point at the collection itself.
func NewCalDAVPublisher(ctx context.Context, logger *slog.Logger, cfg config.CalDAVConfig) (*CalDAVPublisher, error) {
	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid caldav url: %w", err)
	}

	httpClient := &http.Client{Transport: &basicAuthTransport{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: http.DefaultTransport,
	}}

	caldavClient, err := caldav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	p := &CalDAVPublisher{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		calendarPath: strings.TrimSuffix(endpoint.Path, "/") + "/",
	}

	if cfg.Calendar != "" {
		logger.Info("Finding CalDAV calendar.", "calendar", cfg.Calendar)
		calendarPath, err := p.findCalendar(ctx, cfg.Calendar)
		if err != nil {
			return nil, fmt.Errorf("could not find calendar %q: %w", cfg.Calendar, err)
		}
		p.calendarPath = calendarPath
		logger.Info("Successfully found CalDAV calendar.", "path", calendarPath)
	}
	return p, nil
}

// Name identifies the target in mirror state.
func (p *CalDAVPublisher) Name() string { return "caldav" }

// Publish creates or replaces the entry's calendar object. The object is
// named after the entry UID, which is also the returned remote id.
func (p *CalDAVPublisher) Publish(ctx context.Context, entry Entry, remoteID string) (string, error) {
	if remoteID == "" {
		remoteID = entry.UID
	}
	objectPath := path.Join(p.calendarPath, remoteID+".ics")
	p.logger.Debug("Writing CalDAV object.", "event", entry.Event.ID, "path", objectPath)

	writer, err := p.webdavClient.Create(ctx, objectPath)
	if err != nil {
		return "", fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	if err := ical.NewEncoder(writer).Encode(newCalendar(entry)); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to store event on CalDAV server: %w", err)
	}

	p.logger.Info("Successfully published event to CalDAV.", "event", entry.Event.ID, "name", entry.Event.Name)
	return remoteID, nil
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (p *CalDAVPublisher) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := p.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := p.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := p.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name %q", name)
}
