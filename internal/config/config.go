// Package config loads service settings from defaults and SCHEMAD_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SCHEMAD_"

type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Log      Log      `koanf:"log"`
	Database Database `koanf:"db"`
	Migrate  Migrate  `koanf:"migrate"`
}

type HTTP struct {
	Addr  string `koanf:"addr"`
	Token string `koanf:"token"`
}

type Log struct {
	Level string `koanf:"level"`
}

// Database describes the migration target. URL, when set, wins over the
// individual fields.
type Database struct {
	Dialect  string `koanf:"dialect"`
	URL      string `koanf:"url"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	// Path is the database file for sqlite.
	Path string `koanf:"path"`
	// Create provisions Name on the server when it does not exist yet.
	Create bool `koanf:"create"`
}

type Migrate struct {
	// Timeout bounds each statement. Zero disables the bound.
	Timeout time.Duration `koanf:"timeout"`
}

func defaults() map[string]any {
	return map[string]any{
		"http.addr":       ":8080",
		"log.level":       "info",
		"db.dialect":      "postgres",
		"db.host":         "localhost",
		"db.port":         5432,
		"db.user":         "postgres",
		"db.name":         "postgres",
		"db.path":         "schemad.db",
		"db.create":       false,
		"migrate.timeout": "5m",
	}
}

// envKey maps SCHEMAD_DB_HOST to db.host.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
}

func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load config defaults: %w", err)
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Migrate.Timeout < 0 {
		return nil, fmt.Errorf("migrate.timeout must not be negative, got %s", cfg.Migrate.Timeout)
	}
	return &cfg, nil
}
