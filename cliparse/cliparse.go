// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string
	// RedisURL enables the cross-replica transport and watchable store.
	RedisURL       string
	AllowedOrigins []string
	RelayKeySalt   string
	PanelURL       string
	Timings        Timings
}

// Timings are the sync tunables. They are read from the environment only.
type Timings struct {
	LeaderStaleAfter  time.Duration `envconfig:"LEADER_STALE_AFTER" default:"10s"`
	LeaderHeartbeat   time.Duration `envconfig:"LEADER_HEARTBEAT" default:"5s"`
	RequestTimeout    time.Duration `envconfig:"BRIDGE_REQUEST_TIMEOUT" default:"5s"`
	TriggerClearDelay time.Duration `envconfig:"SYNC_TRIGGER_CLEAR_DELAY" default:"100ms"`
	RefreshInterval   time.Duration `envconfig:"SETTINGS_REFRESH_INTERVAL" default:"60s"`
	MessagesPerSecond float64       `envconfig:"BRIDGE_MESSAGES_PER_SECOND" default:"20"`
}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// ParseFlags validates flags and fills the rest from the environment
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var origins string

	flags := flag.NewFlagSet("livedraw", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	flags.IntVar(&cfg.Port, "p", 0, "Server port")
	flags.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	flags.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	flags.StringVar(&cfg.RedisURL, "redis", "", "Redis URL (optional)")
	flags.StringVar(&origins, "origins", "", "Comma-separated allowed origins")
	flags.StringVar(&cfg.PanelURL, "panel-url", "", "Side panel page URL")

	// Secrets (prefer env variables, but allow CLI for dev)
	flags.StringVar(&cfg.RelayKeySalt, "relay-salt", "", "Relay key salt (prefer env)")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3318 // default
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv("REDIS_URL")
	}
	if cfg.PanelURL == "" {
		cfg.PanelURL = os.Getenv("PANEL_URL")
	}

	if origins == "" {
		origins = os.Getenv("ALLOWED_ORIGINS")
	}
	cfg.AllowedOrigins = SplitOrigins(origins)
	if len(cfg.AllowedOrigins) == 0 {
		return Config{}, errors.New("ALLOWED_ORIGINS required")
	}

	// Secrets - MUST be provided
	if cfg.RelayKeySalt == "" {
		cfg.RelayKeySalt = os.Getenv("RELAY_KEY_SALT")
	}
	if cfg.RelayKeySalt == "" {
		return Config{}, errors.New("RELAY_KEY_SALT required")
	}

	if err := envconfig.Process("", &cfg.Timings); err != nil {
		return Config{}, fmt.Errorf("invalid timing settings: %w", err)
	}
	if err := cfg.Timings.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// SplitOrigins splits a comma-separated origin list, dropping blanks.
func SplitOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (t Timings) validate() error {
	if t.LeaderStaleAfter <= 0 {
		return errors.New("LEADER_STALE_AFTER must be positive")
	}
	if t.LeaderHeartbeat <= 0 {
		return errors.New("LEADER_HEARTBEAT must be positive")
	}
	if t.LeaderHeartbeat >= t.LeaderStaleAfter {
		return errors.New("LEADER_HEARTBEAT must be shorter than LEADER_STALE_AFTER")
	}
	if t.RequestTimeout <= 0 {
		return errors.New("BRIDGE_REQUEST_TIMEOUT must be positive")
	}
	if t.TriggerClearDelay < 0 {
		return errors.New("SYNC_TRIGGER_CLEAR_DELAY must not be negative")
	}
	if t.RefreshInterval < 0 {
		return errors.New("SETTINGS_REFRESH_INTERVAL must not be negative")
	}
	if t.MessagesPerSecond < 0 {
		return errors.New("BRIDGE_MESSAGES_PER_SECOND must not be negative")
	}
	return nil
}
