package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"discoops/internal/calendar"
	"discoops/internal/interest"
	"discoops/internal/models"
)

func calendarCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendar",
		Usage: "Export events with their interested members to calendars.",
		Subcommands: []*cli.Command{
			calendarAuthCommand(),
			{
				Name:      "export",
				Usage:     "Write an event as an iCalendar (.ics) file.",
				ArgsUsage: "<event name or id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "File to write. Defaults to stdout."},
				},
				Action: calendarExport,
			},
			{
				Name:      "push",
				Usage:     "Publish an event to the configured CalDAV and Google calendars.",
				ArgsUsage: "<event name or id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be published without making changes."},
				},
				Action: calendarPush,
			},
		},
	}
}

func calendarAuthCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger.Info("Starting Google authentication flow.")

			oauthCfg, err := calendar.OAuthConfig(cfg.Calendar.Google)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Fprintf(c.App.Writer, "Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Fprint(c.App.Writer, "Enter Authorization Code: ")
			authCode, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := oauthCfg.Exchange(c.Context, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}
			if err := calendar.SaveToken(cfg.Calendar.Google.TokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", cfg.Calendar.Google.TokenFile)
			return nil
		},
	}
}

// eventWithAttendees resolves the event and its interested members.
func (e *env) eventWithAttendees(ctx context.Context, query string) (models.Event, []calendar.Attendee, error) {
	event, _, err := e.resolveEvent(ctx, query)
	if err != nil {
		return models.Event{}, nil, err
	}
	dir, err := e.client.LoadDirectory(ctx, e.guild())
	if err != nil {
		return models.Event{}, nil, err
	}
	members, err := interest.NewFetcher(e.logger, e.client).Fetch(ctx, e.guild(), event.ID, dir)
	if err != nil {
		return models.Event{}, nil, err
	}
	return event, calendar.Attendees(members.Sorted(), dir), nil
}

func calendarExport(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	event, attendees, err := e.eventWithAttendees(c.Context, query)
	if err != nil {
		return err
	}
	entry, err := calendar.NewEntry(e.guild(), event, attendees, e.cfg.Location(), e.cfg.Calendar.DefaultDuration)
	if err != nil {
		return fmt.Errorf("cannot export %q: %w", event.Name, err)
	}

	out := c.String("output")
	if out == "" {
		return calendar.Encode(c.App.Writer, entry)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := calendar.Encode(f, entry); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	e.logger.Info("Successfully exported event.", "event", event.ID, "file", out, "attendees", len(attendees))
	return nil
}

func calendarPush(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	publishers, err := e.publishers(c.Context)
	if err != nil {
		return err
	}
	event, attendees, err := e.eventWithAttendees(c.Context, query)
	if err != nil {
		return err
	}

	dryRun := c.Bool("dry-run") || e.cfg.Sync.DryRun
	if dryRun {
		e.logger.Info("Performing a dry run. No changes will be made.")
	}
	mirror := calendar.NewMirror(e.logger, e.store, publishers, e.cfg.Location(), e.cfg.Calendar.DefaultDuration, dryRun)
	results, err := mirror.Push(c.Context, e.guild(), event, attendees)
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(c.App.Writer, "%s: failed: %v\n", r.Target, r.Err)
		case dryRun:
			fmt.Fprintf(c.App.Writer, "%s: would publish %q (update: %t)\n", r.Target, event.Name, r.Updated)
		case r.Updated:
			fmt.Fprintf(c.App.Writer, "%s: updated %s\n", r.Target, r.RemoteID)
		default:
			fmt.Fprintf(c.App.Writer, "%s: created %s\n", r.Target, r.RemoteID)
		}
	}
	return err
}

func (e *env) publishers(ctx context.Context) ([]calendar.Publisher, error) {
	var pubs []calendar.Publisher
	if e.cfg.Calendar.CalDAV.Enabled() {
		p, err := calendar.NewCalDAVPublisher(ctx, e.logger, e.cfg.Calendar.CalDAV)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav publisher: %w", err)
		}
		pubs = append(pubs, p)
	}
	if e.cfg.Calendar.Google.Enabled() {
		p, err := calendar.NewGooglePublisher(ctx, e.logger, e.cfg.Calendar.Google)
		if err != nil {
			return nil, fmt.Errorf("failed to create google publisher: %w", err)
		}
		pubs = append(pubs, p)
	}
	if len(pubs) == 0 {
		return nil, errors.New("no calendar configured: set CALDAV_URL or GOOGLE_CALENDAR_ID")
	}
	return pubs, nil
}
