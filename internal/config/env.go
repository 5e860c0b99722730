package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings are the process settings read from the environment.
type Settings struct {
	ListenAddr     string        `env:"TIMEROOMS_ADDR" envDefault:":8080"`
	ConfigPath     string        `env:"TIMEROOMS_CONFIG"`
	DBPath         string        `env:"TIMEROOMS_DB" envDefault:"timerooms.db"`
	SnapshotPath   string        `env:"TIMEROOMS_SNAPSHOT" envDefault:"timerooms.snap"`
	BackupInterval time.Duration `env:"TIMEROOMS_BACKUP_INTERVAL" envDefault:"1m"`
	Profile        string        `env:"TIMEROOMS_PROFILE" envDefault:"default"`
}

// LoadSettings parses Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// LoadSettingsFrom parses Settings from a fixed variable set instead of the process
// environment.
func LoadSettingsFrom(vars map[string]string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: vars}); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}
