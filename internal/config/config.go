// Package config loads tasktree settings.
//
// Precedence, lowest first: built-in defaults, an optional YAML file, then
// TASKTREE_* environment variables ("." in a key becomes "_", so db.path is
// TASKTREE_DB_PATH).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/tasktree/internal/orderkey"
	"github.com/roach88/tasktree/internal/retry"
	"github.com/roach88/tasktree/internal/telemetry"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TASKTREE"

// Config is the resolved configuration.
type Config struct {
	DBPath         string
	LogLevel       string
	LogFormat      string
	OutputFormat   string
	MaxKeyLength   int
	Retry          retry.Policy
	Telemetry      telemetry.Config
	ConfigFileUsed string
}

// Load resolves configuration. path may be empty; a named file that does not
// exist is an error, while the absence of any file is not.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		DBPath:       v.GetString("db.path"),
		LogLevel:     strings.ToLower(v.GetString("log.level")),
		LogFormat:    strings.ToLower(v.GetString("log.format")),
		OutputFormat: strings.ToLower(v.GetString("output.format")),
		MaxKeyLength: v.GetInt("orderkey.max_length"),
		Retry: retry.Policy{
			InitialInterval: v.GetDuration("retry.initial_interval"),
			MaxElapsed:      v.GetDuration("retry.max_elapsed"),
		},
		Telemetry: telemetry.Config{
			Enabled:      v.GetBool("telemetry.enabled"),
			Stdout:       v.GetBool("telemetry.stdout"),
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
		},
		ConfigFileUsed: v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", "tasktree.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("output.format", "text")
	v.SetDefault("orderkey.max_length", orderkey.DefaultMaxKeyLength)
	v.SetDefault("retry.initial_interval", retry.DefaultPolicy().InitialInterval)
	v.SetDefault("retry.max_elapsed", retry.DefaultPolicy().MaxElapsed)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.LogFormat)
	}
	switch c.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("output.format must be text or json (got %q)", c.OutputFormat)
	}
	if c.MaxKeyLength < 2 {
		return fmt.Errorf("orderkey.max_length must be at least 2 (got %d)", c.MaxKeyLength)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	return nil
}
