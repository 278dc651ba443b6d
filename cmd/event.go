package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"discoops/internal/interest"
	"discoops/internal/models"
)

func eventCommand() *cli.Command {
	return &cli.Command{
		Name:  "event",
		Usage: "Inspect scheduled events.",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show an event and the members interested in it.",
				ArgsUsage: "<event name or id>",
				Action: func(c *cli.Context) error {
					query, err := queryArg(c)
					if err != nil {
						return err
					}
					e, err := setup(c)
					if err != nil {
						return err
					}
					defer e.close()

					event, others, err := e.resolveEvent(c.Context, query)
					if err != nil {
						return err
					}
					dir, err := e.client.LoadDirectory(c.Context, e.guild())
					if err != nil {
						return err
					}
					members, err := interest.NewFetcher(e.logger, e.client).Fetch(c.Context, e.guild(), event.ID, dir)
					if err != nil {
						return err
					}

					w := c.App.Writer
					printEvent(w, event, e.cfg.Location())
					printAmbiguity(w, others)
					ids := members.Sorted()
					fmt.Fprintf(w, "\nInterested members (%d):\n", len(ids))
					for _, id := range ids {
						fmt.Fprintf(w, "  %s (%s)\n", dir.DisplayName(id), id)
					}
					return nil
				},
			},
		},
	}
}

func printEvent(w io.Writer, ev models.Event, loc *time.Location) {
	fmt.Fprintf(w, "%s\n", ev.Name)
	fmt.Fprintf(w, "  ID:         %s\n", ev.ID)
	fmt.Fprintf(w, "  Status:     %s\n", ev.Status)
	if ev.HasStart() {
		fmt.Fprintf(w, "  Starts:     %s\n", ev.StartTime.In(loc).Format("Mon 2 Jan 2006 15:04 MST"))
	} else {
		fmt.Fprintf(w, "  Starts:     not scheduled\n")
	}
	switch {
	case ev.Location != "":
		fmt.Fprintf(w, "  Location:   %s\n", ev.Location)
	case ev.ChannelID != "":
		fmt.Fprintf(w, "  Channel:    <#%s>\n", ev.ChannelID)
	}
	fmt.Fprintf(w, "  Interested: %d (reported by Discord)\n", ev.InterestedCount)
	if ev.Description != "" {
		fmt.Fprintf(w, "\n  %s\n", strings.ReplaceAll(ev.Description, "\n", "\n  "))
	}
}

func printAmbiguity(w io.Writer, others []models.Event) {
	if len(others) == 0 {
		return
	}
	names := make([]string, len(others))
	for i, o := range others {
		names[i] = fmt.Sprintf("%q", o.Name)
	}
	fmt.Fprintf(w, "\nNote: %d other event(s) also matched: %s. Use the event id to pick one.\n", len(others), strings.Join(names, ", "))
}
