package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"discoops/internal/models"
	"discoops/internal/rolesync"
)

func roleCommand() *cli.Command {
	dryRun := &cli.BoolFlag{Name: "dry-run", Usage: "Show the membership changes without making them."}
	agent := &cli.StringFlag{Name: "agent", Usage: "Member id whose authority is checked. Defaults to discord.agent_id, then the bot."}
	byID := &cli.BoolFlag{Name: "id", Usage: "Treat the argument as an event id, even if the event is no longer listed."}

	return &cli.Command{
		Name:  "role",
		Usage: "Manage the notification role of an event.",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a role for an event and give it to every interested member.",
				ArgsUsage: "<event name or id>",
				Flags:     []cli.Flag{dryRun, agent},
				Action:    roleCreate,
			},
			{
				Name:      "sync",
				Usage:     "Add newly interested members to the event role and remove the rest.",
				ArgsUsage: "<event name or id>",
				Flags:     []cli.Flag{dryRun, byID},
				Action:    roleSync,
			},
			{
				Name:      "delete",
				Usage:     "Delete the event role and forget the mapping.",
				ArgsUsage: "<event name or id>",
				Flags:     []cli.Flag{agent, byID},
				Action:    roleDelete,
			},
			{
				Name:   "status",
				Usage:  "List the events of this server that have a role.",
				Action: roleStatus,
			},
		},
	}
}

func roleCreate(c *cli.Context) error {
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
	w := c.App.Writer
	printAmbiguity(w, others)

	if c.Bool("dry-run") || e.cfg.Sync.DryRun {
		delta, err := e.sync.PlanCreate(c.Context, e.guild(), event)
		if err != nil {
			return explain(err, event)
		}
		printDelta(w, delta)
		return nil
	}

	agentID := c.String("agent")
	if agentID == "" {
		agentID = e.cfg.Discord.AgentID
	}
	report, err := e.sync.Create(c.Context, e.guild(), event, agentID)
	if report.Group.ID != "" {
		fmt.Fprintf(w, "Created role %q for %q.\n", report.Group.Name, event.Name)
		printReport(w, report)
	}
	return explain(err, event)
}

func roleSync(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	event := models.Event{ID: query, Name: query}
	if !c.Bool("id") {
		var others []models.Event
		if event, others, err = e.resolveEvent(c.Context, query); err != nil {
			return err
		}
		printAmbiguity(c.App.Writer, others)
	}

	if c.Bool("dry-run") || e.cfg.Sync.DryRun {
		delta, err := e.sync.Plan(c.Context, e.guild(), event.ID)
		if err != nil {
			return explain(err, event)
		}
		printDelta(c.App.Writer, delta)
		return nil
	}

	report, err := e.sync.Sync(c.Context, e.guild(), event.ID)
	if report.Group.ID != "" {
		fmt.Fprintf(c.App.Writer, "Synced role %q for %q.\n", report.Group.Name, event.Name)
		printReport(c.App.Writer, report)
	}
	return explain(err, event)
}

func roleDelete(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	event := models.Event{ID: query, Name: query}
	if !c.Bool("id") {
		if event, _, err = e.resolveEvent(c.Context, query); err != nil {
			return err
		}
	}

	agentID := c.String("agent")
	if agentID == "" {
		agentID = e.cfg.Discord.AgentID
	}
	res, err := e.sync.Delete(c.Context, e.guild(), event.ID, agentID)
	if err != nil {
		return explain(err, event)
	}
	if res.AlreadyGone {
		fmt.Fprintf(c.App.Writer, "Role for %q was already deleted; mapping removed.\n", event.Name)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "Deleted role for %q.\n", event.Name)
	return nil
}

func roleStatus(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	mapped, err := e.sync.Mapped(c.Context, e.guild())
	if err != nil {
		return err
	}
	w := c.App.Writer
	if len(mapped) == 0 {
		fmt.Fprintln(w, "No event roles on this server.")
		return nil
	}

	names := map[string]string{}
	if events, err := e.client.ListEvents(c.Context, e.guild()); err == nil {
		for _, ev := range events {
			names[ev.ID] = ev.Name
		}
	} else {
		e.logger.Warn("Could not list events, showing ids only.", "error", err)
	}

	ids := make([]string, 0, len(mapped))
	for id := range mapped {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fmt.Fprintf(w, "Event roles (%d):\n", len(ids))
	for _, id := range ids {
		name, ok := names[id]
		if !ok {
			name = "(event no longer listed)"
		}
		fmt.Fprintf(w, "  %s  %s  → role %s\n", id, name, mapped[id])
	}
	return nil
}

// explain turns precondition errors into operator-facing messages.
func explain(err error, event models.Event) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rolesync.ErrAlreadyExists):
		return fmt.Errorf("%q already has a role; use 'role sync' to update it", event.Name)
	case errors.Is(err, rolesync.ErrNotFound):
		return fmt.Errorf("%q has no role (%w); use 'role create' first", event.Name, err)
	default:
		return err
	}
}

func printReport(w io.Writer, r rolesync.Report) {
	c := r.Counts()
	fmt.Fprintf(w, "Added %d, removed %d, unchanged %d, failed %d.\n", c.Added, c.Removed, c.Unchanged, c.Failed)

	for _, kind := range []rolesync.FailureKind{rolesync.HierarchyViolation, rolesync.TransientPlatformError, rolesync.MemberUnresolvable} {
		fs := r.FailuresOf(kind)
		if len(fs) == 0 {
			continue
		}
		ids := make([]string, len(fs))
		for i, f := range fs {
			ids[i] = string(f.Op) + " " + f.MemberID
		}
		fmt.Fprintf(w, "  %s (%d): %s\n", kind, len(fs), strings.Join(ids, ", "))
	}
	if r.HasHierarchyViolation() {
		fmt.Fprintln(w, rolesync.HierarchyRemediation(r.Group.Name))
	}
	if len(r.FailuresOf(rolesync.TransientPlatformError)) > 0 {
		fmt.Fprintln(w, "Temporary Discord errors; run 'role sync' again to retry.")
	}
	fmt.Fprintf(w, "Correlation id: %s\n", r.CorrelationID)
}

func printDelta(w io.Writer, d rolesync.Delta) {
	fmt.Fprintf(w, "[DRY RUN] Role %q: would add %d, remove %d, keep %d.\n", d.GroupName, len(d.ToAdd), len(d.ToRemove), d.Unchanged)
	if len(d.ToAdd) > 0 {
		fmt.Fprintf(w, "  add:    %s\n", strings.Join(d.ToAdd, ", "))
	}
	if len(d.ToRemove) > 0 {
		fmt.Fprintf(w, "  remove: %s\n", strings.Join(d.ToRemove, ", "))
	}
}
