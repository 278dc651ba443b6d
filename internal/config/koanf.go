package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Load builds the configuration from layered sources:
//  1. Defaults: built-in values
//  2. Config file: path, else $DISCOOPS_CONFIG, else the first of DefaultConfigPaths that exists
//  3. Environment variables, after loading .env if present
//
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lower-cased) to config paths.
// The ICLOUD_* and PRIMARY_TIMEZONE names are accepted for older deployments.
var envMappings = map[string]string{
	"discord_token":            "discord.token",
	"discord_guild_id":         "discord.guild_id",
	"discord_agent_id":         "discord.agent_id",
	"discord_request_timeout":  "discord.request_timeout",
	"discord_breaker_failures": "discord.breaker_failures",
	"discord_breaker_timeout":  "discord.breaker_timeout",

	"mapping_backend": "mapping.backend",
	"mapping_path":    "mapping.path",
	"mapping_dsn":     "mapping.dsn",
	"database_url":    "mapping.dsn",

	"sync_mutations_per_second": "sync.mutations_per_second",
	"sync_burst":                "sync.burst",
	"sync_pass_timeout":         "sync.pass_timeout",
	"sync_dry_run":              "sync.dry_run",

	"watch_schedule":   "watch.schedule",
	"watch_http_addr":  "watch.http_addr",
	"watch_rate_limit": "watch.rate_limit",

	"log_level":  "logging.level",
	"log_format": "logging.format",

	"calendar_timezone":         "calendar.timezone",
	"primary_timezone":          "calendar.timezone",
	"calendar_default_duration": "calendar.default_duration",

	"caldav_url":                   "calendar.caldav.url",
	"caldav_username":              "calendar.caldav.username",
	"caldav_password":              "calendar.caldav.password",
	"caldav_calendar":              "calendar.caldav.calendar",
	"icloud_username":              "calendar.caldav.username",
	"icloud_app_specific_password": "calendar.caldav.password",
	"icloud_calendar_name":         "calendar.caldav.calendar",

	"google_client_id":        "calendar.google.client_id",
	"google_client_secret":    "calendar.google.client_secret",
	"google_credentials_file": "calendar.google.credentials_file",
	"google_token_file":       "calendar.google.token_file",
	"google_calendar_id":      "calendar.google.calendar_id",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
