package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"host":         "decision_api.host",
	"port":         "decision_api.port",
	"rules-file":   "decision_api.rules_file",
	"db-url":       "database.url",
	"metrics-addr": "telemetry.metrics_addr",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags the user actually set override lower layers.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults matching Default()
	d := Default()
	v.SetDefault("decision_api.host", d.DecisionAPI.Host)
	v.SetDefault("decision_api.port", d.DecisionAPI.Port)
	v.SetDefault("decision_api.max_connections", d.DecisionAPI.MaxConnections)
	v.SetDefault("decision_api.request_timeout", d.DecisionAPI.RequestTimeout.String())
	v.SetDefault("decision_api.rules_file", "")
	v.SetDefault("engine.metrics_window", d.Engine.MetricsWindow)
	v.SetDefault("engine.metrics_max_age", d.Engine.MetricsMaxAge.String())
	v.SetDefault("engine.sweep_schedule", d.Engine.SweepSchedule)
	v.SetDefault("telemetry.metrics_addr", d.Telemetry.MetricsAddr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("database.url", "")

	// Bind environment variables with AGENT00_ prefix
	v.SetEnvPrefix("AGENT00")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials must come from the environment, never from a config file
	if err := validateNoCredentialsInConfig(configPath); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{
		DecisionAPI: DecisionAPIConfig{
			Host:           v.GetString("decision_api.host"),
			Port:           v.GetInt("decision_api.port"),
			MaxConnections: v.GetInt("decision_api.max_connections"),
			RequestTimeout: v.GetDuration("decision_api.request_timeout"),
			RulesFile:      v.GetString("decision_api.rules_file"),
		},
		Engine: EngineConfig{
			MetricsWindow: v.GetInt("engine.metrics_window"),
			MetricsMaxAge: v.GetDuration("engine.metrics_max_age"),
			SweepSchedule: v.GetString("engine.sweep_schedule"),
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: v.GetString("telemetry.metrics_addr"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		DatabaseURL: v.GetString("database.url"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive limits, the sweep schedule and
// logging options.
func validateConfig(cfg *Config) error {
	if cfg.DecisionAPI.Port <= 0 || cfg.DecisionAPI.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.DecisionAPI.Port)
	}
	if cfg.DecisionAPI.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.DecisionAPI.MaxConnections)
	}
	if cfg.DecisionAPI.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.DecisionAPI.RequestTimeout)
	}
	if cfg.Engine.MetricsWindow <= 0 {
		return fmt.Errorf("metrics_window must be positive, got %d", cfg.Engine.MetricsWindow)
	}
	if cfg.Engine.MetricsMaxAge <= 0 {
		return fmt.Errorf("metrics_max_age must be positive, got %v", cfg.Engine.MetricsMaxAge)
	}
	if _, err := cron.ParseStandard(cfg.Engine.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sweep_schedule %q: %w", cfg.Engine.SweepSchedule, err)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("log format must be one of text, json, logfmt, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoCredentialsInConfig enforces environment-only credentials
// (12-factor principle): a database URL carrying a password may not live in
// a config file. The file is read on its own so environment values are not
// mistaken for file contents.
func validateNoCredentialsInConfig(configPath string) error {
	if configPath == "" {
		return nil
	}
	fv := viper.New()
	fv.SetConfigFile(configPath)
	if err := fv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	raw := fv.GetString("database.url")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid database.url in config file: %w", err)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return fmt.Errorf("database credentials not allowed in config files (use AGENT00_DATABASE_URL environment variable)")
	}
	return nil
}
