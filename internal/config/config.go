// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads gitkeeper settings from defaults, gitkeeper.yaml,
// GITKEEPER_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toeirei/gitkeeper/internal/keycheck"
)

// Config is the full gitkeeper configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Gitolite GitoliteConfig `mapstructure:"gitolite" yaml:"gitolite"`
	Keycheck KeycheckConfig `mapstructure:"keycheck" yaml:"keycheck"`
	Resync   ResyncConfig   `mapstructure:"resync" yaml:"resync"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Language string         `mapstructure:"language" yaml:"language"`
	Debug    bool           `mapstructure:"debug" yaml:"debug"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	Dsn  string `mapstructure:"dsn" yaml:"dsn"`
}

type GitoliteConfig struct {
	// AdminKeyPath points at the administrator public key. It is read on
	// every uniqueness check.
	AdminKeyPath string `mapstructure:"admin_key_path" yaml:"admin_key_path"`
}

type KeycheckConfig struct {
	Mode    string        `mapstructure:"mode" yaml:"mode"`
	Command string        `mapstructure:"command" yaml:"command"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ResyncConfig struct {
	Notifier     string        `mapstructure:"notifier" yaml:"notifier"`
	Command      string        `mapstructure:"command" yaml:"command"`
	RedisURL     string        `mapstructure:"redis_url" yaml:"redis_url"`
	RedisChannel string        `mapstructure:"redis_channel" yaml:"redis_channel"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Defaults returns the built-in defaults keyed the way viper expects them.
func Defaults() map[string]any {
	return map[string]any{
		"database.type":           "sqlite",
		"database.dsn":            "./gitkeeper.db",
		"gitolite.admin_key_path": "",
		"keycheck.mode":           "external",
		"keycheck.command":        "ssh-keygen",
		"keycheck.timeout":        keycheck.DefaultTimeout,
		"resync.notifier":         "log",
		"resync.command":          "",
		"resync.redis_url":        "",
		"resync.redis_channel":    "",
		"resync.timeout":          30 * time.Second,
		"resync.interval":         30 * time.Second,
		"resync.batch_size":       100,
		"metrics.listen":          "",
		"language":                "en",
		"debug":                   false,
	}
}

// Validate rejects settings no component can work with.
func (c Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database.type %q (expected sqlite, postgres or mysql)", c.Database.Type)
	}
	if strings.TrimSpace(c.Database.Dsn) == "" {
		return errors.New("database.dsn must not be empty")
	}
	switch c.Keycheck.Mode {
	case "", "external", "builtin":
	default:
		return fmt.Errorf("unsupported keycheck.mode %q", c.Keycheck.Mode)
	}
	if c.Keycheck.Timeout < 0 || c.Resync.Timeout < 0 || c.Resync.Interval < 0 {
		return errors.New("timeouts and intervals must not be negative")
	}
	return nil
}

// GetConfigPath returns the full path of the user or system configuration
// file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "gitkeeper")
		default:
			configDir = "/etc/gitkeeper"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "gitkeeper")
	}

	return filepath.Join(configDir, "gitkeeper.yaml"), nil
}

// LoadConfig merges defaults, the first gitkeeper.yaml found, environment
// variables and the flags of cmd into a T. configFile, when set, replaces
// the search path lookup.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("gitkeeper")
	v.SetConfigType("yaml")
	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, a broken one is not
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, err
		}
	}

	v.SetEnvPrefix("gitkeeper")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// WriteConfigFile stores c as YAML at the user or system configuration path
// and returns that path.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}
	return path, WriteConfigFileTo(c, path)
}

// WriteConfigFileTo stores c as YAML at path.
func WriteConfigFileTo[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	// the file may carry database credentials
	return os.WriteFile(path, data, 0o600)
}
