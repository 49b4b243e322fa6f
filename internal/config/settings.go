package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/chargemap/internal/common"
)

// Viper keys.
const (
	KeyDatabasePath      = "database.path"
	KeyLogLevel          = "logging.level"
	KeyLogFormat         = "logging.format"
	KeyEngineConcurrency = "engine.concurrency"
	KeyIngestNullValue   = "ingest.null_value"
	KeyTUITheme          = "tui.theme"
)

// Settings is the resolved application configuration.
type Settings struct {
	DatabasePath string
	LogLevel     string
	LogFormat    string
	NullValue    string
	Theme        string
	Concurrency  int
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, DefaultDatabasePath())
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyEngineConcurrency, 4)
	v.SetDefault(KeyIngestNullValue, "")
	v.SetDefault(KeyTUITheme, "default")
}

// Load resolves Settings from v (config file, CHARGEMAP_ env vars, flags)
// and validates them.
func Load(v *viper.Viper) (*Settings, error) {
	dbPath, err := ResolveDatabasePath(v.GetString(KeyDatabasePath))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, KeyDatabasePath, err)
	}

	s := &Settings{
		DatabasePath: dbPath,
		LogLevel:     strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:    strings.ToLower(v.GetString(KeyLogFormat)),
		Concurrency:  v.GetInt(KeyEngineConcurrency),
		NullValue:    v.GetString(KeyIngestNullValue),
		Theme:        v.GetString(KeyTUITheme),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.DatabasePath) == "" {
		return fmt.Errorf("%w: %s is empty", common.ErrMissingConfig, KeyDatabasePath)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("%w: %s must be at least 1, got %d", common.ErrInvalidConfig, KeyEngineConcurrency, s.Concurrency)
	}
	if _, err := common.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, KeyLogLevel, err)
	}
	switch s.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: %s must be console or json, got %q", common.ErrInvalidConfig, KeyLogFormat, s.LogFormat)
	}
	return nil
}
