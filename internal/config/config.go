// Package config loads tracker configuration: defaults first, then an
// optional YAML file, then ONEUP_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full tracker configuration.
type Config struct {
	// DataDir holds the local database and exercise config
	// (default ~/.oneup).
	DataDir string `mapstructure:"data_dir"`

	// DBPath overrides the progress database location.
	DBPath string `mapstructure:"db_path"`

	// ExercisesPath overrides the exercise catalogue location.
	ExercisesPath string `mapstructure:"exercises_path"`

	Remote RemoteConfig `mapstructure:"remote"`
	User   UserConfig   `mapstructure:"user"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Log    LogConfig    `mapstructure:"log"`
}

// RemoteConfig points at the replica server.
type RemoteConfig struct {
	URL string `mapstructure:"url"`
}

// UserConfig identifies the signed-in user. An empty UID means sync is
// disabled and the tracker runs purely local.
type UserConfig struct {
	UID      string `mapstructure:"uid"`
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	PhotoURL string `mapstructure:"photo_url"`
}

// SyncConfig tunes the background daemon.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig controls daemon log rotation.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".oneup")
	return &Config{
		DataDir: dataDir,
		Sync:    SyncConfig{Interval: 5 * time.Minute},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads configuration from path (empty means the default
// location) on top of Default, with ONEUP_* environment variables
// taking precedence over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ONEUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Known keys must be registered for AutomaticEnv to surface them
	// through Unmarshal.
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("db_path", "")
	v.SetDefault("exercises_path", "")
	v.SetDefault("remote.url", "")
	v.SetDefault("user.uid", "")
	v.SetDefault("user.name", "")
	v.SetDefault("user.email", "")
	v.SetDefault("user.photo_url", "")
	v.SetDefault("sync.interval", cfg.Sync.Interval)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)

	if path == "" {
		// The default config file is optional; an explicit one is not.
		candidate := filepath.Join(cfg.DataDir, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "progress.db")
	}
	if cfg.ExercisesPath == "" {
		cfg.ExercisesPath = filepath.Join(cfg.DataDir, "exercises.yaml")
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "daemon.log")
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = 5 * time.Minute
	}
	return cfg, nil
}
