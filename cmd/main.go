package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"discoops/internal/config"
	"discoops/internal/discord"
	"discoops/internal/logging"
	"discoops/internal/mapping"
	"discoops/internal/models"
	"discoops/internal/resolver"
	"discoops/internal/rolesync"
)

func main() {
	app := &cli.App{
		Name:  "discoops",
		Usage: "Keep Discord event roles in step with the members interested in each event.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to the YAML config file."},
			&cli.StringFlag{Name: "guild", Aliases: []string{"g"}, Usage: "Discord server id. Overrides DISCORD_GUILD_ID."},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn or error."},
		},
		Commands: []*cli.Command{
			eventCommand(),
			roleCommand(),
			watchCommand(),
			calendarCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// env is what every command works with.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  mapping.Store
	client *discord.Client
	sync   *rolesync.Synchronizer
}

// loadConfig reads the configuration and applies the global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if g := c.String("guild"); g != "" {
		cfg.Discord.GuildID = g
	}
	if l := c.String("log-level"); l != "" {
		cfg.Logging.Level = l
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, logger, nil
}

// setup builds the Discord client, mapping store and synchronizer. Callers must call close.
func setup(c *cli.Context) (*env, error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDiscord(); err != nil {
		return nil, err
	}

	client, err := discord.New(logger, cfg.Discord)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}
	store, err := mapping.Open(c.Context, logger, cfg.Mapping)
	if err != nil {
		return nil, err
	}

	s := rolesync.New(logger, client, store, rolesync.Options{
		MutationsPerSecond: cfg.Sync.MutationsPerSecond,
		Burst:              cfg.Sync.Burst,
		PassTimeout:        cfg.Sync.PassTimeout,
	})
	return &env{cfg: cfg, logger: logger, store: store, client: client, sync: s}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("Failed to close mapping store.", "error", err)
	}
}

func (e *env) guild() string { return e.cfg.Discord.GuildID }

// resolveEvent finds the event named by query. An exact event id wins over
// name matching. The other events that matched equally well are returned too.
func (e *env) resolveEvent(ctx context.Context, query string) (models.Event, []models.Event, error) {
	events, err := e.client.ListEvents(ctx, e.guild())
	if err != nil {
		return models.Event{}, nil, err
	}
	for _, ev := range events {
		if ev.ID == query {
			return ev, nil, nil
		}
	}

	resolver.SortByStart(events)
	matches, _ := resolver.Matches(events, query)
	if len(matches) == 0 {
		return models.Event{}, nil, fmt.Errorf("no event matching %q: %w", query, resolver.ErrNotFound)
	}
	return matches[0], matches[1:], nil
}

func queryArg(c *cli.Context) (string, error) {
	if c.NArg() == 0 {
		return "", errors.New("an event name or id is required")
	}
	q := c.Args().First()
	for _, a := range c.Args().Tail() {
		q += " " + a
	}
	return q, nil
}
