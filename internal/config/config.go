// Package config loads the application configuration from an optional YAML
// file, environment variables with the MAILGATE_ prefix, and built-in
// defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Database DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Log      LogConfig       `yaml:"log" mapstructure:"log"`
	Metrics  MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Fetch    FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Accounts []AccountConfig `yaml:"accounts" mapstructure:"accounts"`
}

// DatabaseConfig locates the SQLite database
type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig controls logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // trace, debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, text
}

// MetricsConfig controls the Prometheus listener
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// FetchConfig controls the fetch cycle
type FetchConfig struct {
	// Timeout bounds every network operation against a mail server.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// POPBatchSize caps how many messages a single POP3 cycle takes.
	POPBatchSize int `yaml:"pop_batch_size" mapstructure:"pop_batch_size"`
	// IMAPFolder is the mailbox folder searched for unseen messages.
	IMAPFolder string `yaml:"imap_folder" mapstructure:"imap_folder"`
}

// AccountConfig seeds a mailbox account at startup
type AccountConfig struct {
	Name         string `yaml:"name" mapstructure:"name"`
	ServerType   string `yaml:"server_type" mapstructure:"server_type"` // pop or imap
	Server       string `yaml:"server" mapstructure:"server"`
	Port         int    `yaml:"port" mapstructure:"port"`
	SSL          bool   `yaml:"ssl" mapstructure:"ssl"`
	Username     string `yaml:"username" mapstructure:"username"`
	Password     string `yaml:"password" mapstructure:"password"`
	Active       bool   `yaml:"active" mapstructure:"active"`
	Priority     int    `yaml:"priority" mapstructure:"priority"`
	Attach       bool   `yaml:"attach" mapstructure:"attach"`
	KeepOriginal bool   `yaml:"keep_original" mapstructure:"keep_original"`
	TargetModel  string `yaml:"target_model" mapstructure:"target_model"`
}

// Load reads the configuration. A missing config file is not an error, the
// defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("MAILGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	dataDir := filepath.Join(homeDir, ".mailgate")

	v.SetDefault("database.path", filepath.Join(dataDir, "mailgate.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "localhost:9091")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("fetch.timeout", "60s")
	v.SetDefault("fetch.pop_batch_size", 50)
	v.SetDefault("fetch.imap_folder", "INBOX")
}

func validate(cfg *Config) error {
	if cfg.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if cfg.Fetch.POPBatchSize <= 0 {
		return fmt.Errorf("fetch.pop_batch_size must be positive")
	}

	for i, acc := range cfg.Accounts {
		if acc.Name == "" {
			return fmt.Errorf("accounts[%d]: name is required", i)
		}
		if acc.ServerType != "pop" && acc.ServerType != "imap" {
			return fmt.Errorf("accounts[%d]: server_type must be pop or imap, got %q", i, acc.ServerType)
		}
		if acc.Server == "" || acc.Port == 0 {
			return fmt.Errorf("accounts[%d]: server and port are required", i)
		}
	}

	return nil
}
