package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if err := c.validateMapping(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
		return fmt.Errorf("watch.schedule %q is not a valid cron spec: %w", c.Watch.Schedule, err)
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Calendar.Timezone, err)
	}
	return nil
}

func (c *Config) validateMapping() error {
	switch c.Mapping.Backend {
	case "postgres":
		if c.Mapping.DSN == "" {
			return errors.New("mapping.dsn is required when mapping.backend=postgres")
		}
	case "file", "badger", "sqlite":
		if c.Mapping.Path == "" {
			return fmt.Errorf("mapping.path is required when mapping.backend=%s", c.Mapping.Backend)
		}
	}
	return nil
}

// RequireDiscord checks the settings every command talking to Discord needs.
func (c *Config) RequireDiscord() error {
	if c.Discord.Token == "" {
		return errors.New("DISCORD_TOKEN environment variable not set")
	}
	return c.RequireGuild()
}

// RequireGuild checks that a server has been selected.
func (c *Config) RequireGuild() error {
	if c.Discord.GuildID == "" {
		return errors.New("no guild selected: set DISCORD_GUILD_ID or pass --guild")
	}
	return nil
}

// Location returns the configured calendar time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
