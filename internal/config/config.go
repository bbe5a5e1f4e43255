// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Config holds the worldsim process settings.
type Config struct {
	DBPath       string `env:"WORLDSIM_DB_PATH" envDefault:"data/worldsim.db"`
	TemplateDB   string `env:"WORLDSIM_TEMPLATE_DB" envDefault:"data/templates.db"`
	WorldFile    string `env:"WORLDSIM_WORLD_FILE" envDefault:"worlds/crossroads.yaml"`
	Turns        int    `env:"WORLDSIM_TURNS" envDefault:"10"`
	HistoryLimit int    `env:"WORLDSIM_HISTORY_LIMIT" envDefault:"100"`

	// LogLevel accepts slog level names: debug, info, warn, error.
	LogLevel slog.Level `env:"WORLDSIM_LOG_LEVEL" envDefault:"info"`

	// Seed fixes the randomness source; 0 uses crypto randomness.
	Seed int64 `env:"WORLDSIM_SEED"`

	// Resume continues from the saved world when one exists.
	Resume bool `env:"WORLDSIM_RESUME"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Turns < 0 {
		return Config{}, fmt.Errorf("WORLDSIM_TURNS must not be negative, got %d", cfg.Turns)
	}
	if cfg.HistoryLimit < 1 {
		return Config{}, fmt.Errorf("WORLDSIM_HISTORY_LIMIT must be positive, got %d", cfg.HistoryLimit)
	}
	return cfg, nil
}
