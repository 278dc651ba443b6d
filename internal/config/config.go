// Package config loads discoops configuration from built-in defaults, an
// optional YAML file and the environment, in that order of precedence.
package config

import (
	"time"
)

// ConfigPathEnvVar names the environment variable holding the config file path.
const ConfigPathEnvVar = "DISCOOPS_CONFIG"

// DefaultConfigPaths are searched in order when no config path is given.
var DefaultConfigPaths = []string{
	"discoops.yaml",
	"discoops.yml",
	"/etc/discoops/discoops.yaml",
}

// Config is the complete discoops configuration.
type Config struct {
	Discord  DiscordConfig  `koanf:"discord"`
	Mapping  MappingConfig  `koanf:"mapping"`
	Sync     SyncConfig     `koanf:"sync"`
	Watch    WatchConfig    `koanf:"watch"`
	Logging  LoggingConfig  `koanf:"logging"`
	Calendar CalendarConfig `koanf:"calendar"`
}

// DiscordConfig configures the Discord REST client.
type DiscordConfig struct {
	Token   string `koanf:"token"`
	GuildID string `koanf:"guild_id" validate:"omitempty,numeric"`
	// AgentID is the member whose authority is checked before role mutations.
	// Empty means the bot itself.
	AgentID         string        `koanf:"agent_id" validate:"omitempty,numeric"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gt=0"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// MappingConfig selects and configures the mapping store backend.
type MappingConfig struct {
	Backend string `koanf:"backend" validate:"oneof=memory file badger sqlite postgres"`
	Path    string `koanf:"path"`
	DSN     string `koanf:"dsn"`
}

// SyncConfig tunes role synchronization passes.
type SyncConfig struct {
	MutationsPerSecond float64       `koanf:"mutations_per_second" validate:"gt=0"`
	Burst              int           `koanf:"burst" validate:"gte=1"`
	PassTimeout        time.Duration `koanf:"pass_timeout" validate:"gt=0"`
	DryRun             bool          `koanf:"dry_run"`
}

// WatchConfig configures the periodic re-sync mode.
type WatchConfig struct {
	Schedule string `koanf:"schedule" validate:"required"`
	HTTPAddr string `koanf:"http_addr"`
	// RateLimit is the number of HTTP requests allowed per client per minute.
	RateLimit int `koanf:"rate_limit" validate:"gte=1"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// CalendarConfig configures calendar export and mirroring.
type CalendarConfig struct {
	Timezone string `koanf:"timezone"`
	// DefaultDuration is used for events without an end time.
	DefaultDuration time.Duration `koanf:"default_duration" validate:"gt=0"`
	CalDAV          CalDAVConfig  `koanf:"caldav"`
	Google          GoogleConfig  `koanf:"google"`
}

// CalDAVConfig points at a CalDAV calendar. An empty URL disables it.
type CalDAVConfig struct {
	URL      string `koanf:"url" validate:"omitempty,url"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Calendar string `koanf:"calendar"`
}

// Enabled reports whether a CalDAV target is configured.
func (c CalDAVConfig) Enabled() bool {
	return c.URL != ""
}

// GoogleConfig points at a Google calendar. An empty CalendarID disables it.
type GoogleConfig struct {
	ClientID        string `koanf:"client_id"`
	ClientSecret    string `koanf:"client_secret"`
	CredentialsFile string `koanf:"credentials_file"`
	TokenFile       string `koanf:"token_file"`
	CalendarID      string `koanf:"calendar_id"`
}

// Enabled reports whether a Google calendar target is configured.
func (c GoogleConfig) Enabled() bool {
	return c.CalendarID != ""
}

func defaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			RequestTimeout:  15 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Mapping: MappingConfig{
			Backend: "badger",
			Path:    "data/mappings",
		},
		Sync: SyncConfig{
			MutationsPerSecond: 5,
			Burst:              1,
			PassTimeout:        2 * time.Minute,
		},
		Watch: WatchConfig{
			Schedule:  "@every 10m",
			HTTPAddr:  ":8080",
			RateLimit: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Calendar: CalendarConfig{
			Timezone:        "UTC",
			DefaultDuration: 2 * time.Hour,
			Google: GoogleConfig{
				CredentialsFile: "credentials.json",
				TokenFile:       "token-google.json",
			},
		},
	}
}
