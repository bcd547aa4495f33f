// Package config loads the engine configuration. It supports XDG config
// paths, project-level overrides, and environment variables. A loaded
// Config is treated as immutable for the lifetime of a session.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for squadron.
type Config struct {
	Agents      AgentsConfig      `mapstructure:"agents"`
	Escalation  EscalationConfig  `mapstructure:"escalation"`
	VirtualTime VirtualTimeConfig `mapstructure:"virtual_time"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AgentsConfig bounds the agent pool.
type AgentsConfig struct {
	// MaxAgents caps how many agents may be active at once.
	MaxAgents int `mapstructure:"max_agents" validate:"gte=1"`
	// StaleWindow is how long a working agent may stay silent before the
	// health check flags it.
	StaleWindow time.Duration `mapstructure:"stale_window" validate:"gt=0"`
}

// EscalationConfig holds the escalation policy.
type EscalationConfig struct {
	// Enabled gates all escalation notifications.
	Enabled bool `mapstructure:"enabled"`
	// NotificationThreshold is the minimum severity that notifies a human
	// (minor, moderate, important, severe, critical).
	NotificationThreshold string `mapstructure:"notification_threshold" validate:"oneof=minor moderate important severe critical"`
	// MaxAutoRecovery bounds recovery attempts per escalation.
	MaxAutoRecovery int `mapstructure:"max_auto_recovery" validate:"gte=0"`
	// HistoryCap bounds the resolution history ring.
	HistoryCap int `mapstructure:"history_cap" validate:"gte=1"`
}

// VirtualTimeConfig holds the time-compression ratios.
type VirtualTimeConfig struct {
	// RealPerVirtualHour is the wall-clock length of one virtual hour.
	RealPerVirtualHour time.Duration `mapstructure:"real_per_virtual_hour" validate:"gt=0"`
	// DaysPerSprint is the sprint length in virtual days.
	DaysPerSprint int `mapstructure:"days_per_sprint" validate:"gte=1"`
	// StandupIntervalHours is the standup cadence in virtual hours.
	StandupIntervalHours float64 `mapstructure:"standup_interval_hours" validate:"gt=0"`
}

// StorageConfig points at the state database.
type StorageConfig struct {
	// Path is the SQLite database path. Empty runs memory-only.
	Path string `mapstructure:"path"`
}

// LoggingConfig configures the debug log sink.
type LoggingConfig struct {
	// Path is the log file. Empty disables file logging.
	Path string `mapstructure:"path"`
	// Level is the minimum level written (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agents.max_agents", 5)
	v.SetDefault("agents.stale_window", 5*time.Minute)
	v.SetDefault("escalation.enabled", true)
	v.SetDefault("escalation.notification_threshold", "important")
	v.SetDefault("escalation.max_auto_recovery", 3)
	v.SetDefault("escalation.history_cap", 256)
	v.SetDefault("virtual_time.real_per_virtual_hour", time.Minute)
	v.SetDefault("virtual_time.days_per_sprint", 5)
	v.SetDefault("virtual_time.standup_interval_hours", 6.0)
	v.SetDefault("storage.path", "")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.level", "info")
}

// getUserConfigDir returns the XDG config directory for squadron.
func getUserConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "squadron")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "squadron")
}

// findProjectConfig walks up from the working directory looking for a
// .squadron.yaml override.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".squadron.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load reads configuration with the precedence (highest first):
// environment variables (SQUADRON_*), project config (.squadron.yaml),
// user config (~/.config/squadron/config.yaml), built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("SQUADRON")
	v.AutomaticEnv()

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, _ := unmarshal(v)
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
