// Package config provides configuration management for Agent00 services.
package config

import (
	"time"
)

// Config is the complete service configuration.
type Config struct {
	DecisionAPI DecisionAPIConfig
	Engine      EngineConfig
	Telemetry   TelemetryConfig
	Log         LogConfig
	DatabaseURL string
}

// DecisionAPIConfig holds configuration for the gRPC decision API service.
type DecisionAPIConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	// RulesFile selects a YAML rule file as the rule source instead of the
	// database when non-empty.
	RulesFile string
}

// EngineConfig tunes the decision engine and its metrics retention.
type EngineConfig struct {
	MetricsWindow int
	MetricsMaxAge time.Duration
	SweepSchedule string
}

// TelemetryConfig controls the Prometheus endpoint. Empty MetricsAddr
// disables it.
type TelemetryConfig struct {
	MetricsAddr string
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		DecisionAPI: DecisionAPIConfig{
			Host:           "0.0.0.0",
			Port:           50061,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			MetricsWindow: 100,
			MetricsMaxAge: 24 * time.Hour,
			SweepSchedule: "@every 1h",
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: ":9464",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
