// Package config provides configuration management for the Jasper daemon.
//
// Responsibilities:
//   - Load configuration from a YAML file, environment variables, and defaults
//   - Validate configuration on startup and on every reload
//   - Provide runtime access to the current configuration
//   - Watch the config file and coalesce reload notifications
//   - Check that secret references have the backend:key form (resolution
//     itself happens in internal/secret)
//
// Configuration Sources (priority order, high to low):
//  1. Environment variables (JASPER_ prefix)
//  2. YAML config file (default: $XDG_CONFIG_HOME/jasper/config.yaml)
//  3. Built-in defaults
//
// Main Configuration Sections:
//
//  1. General
//     - data_dir: directory holding the SQLite store and keystore file
//     - planning_horizon_days: how far ahead the context aggregator asks
//       each source to fetch, in days
//
//  2. AI
//     - provider: "anthropic" | "openai" | "ollama"
//     - model, base_url, api_key_ref (a secret reference, e.g. "env:ANTHROPIC_API_KEY")
//     - max_retries, timeout_seconds
//
//  3. context_sources.<id>
//     - kind: which Source implementation to construct
//     - enabled, timeout_seconds
//
//  4. Insights
//     - min_analysis_interval_seconds, max_analysis_interval_seconds
//     - near_horizon_seconds
//     - retention_max_count, retention_max_age_seconds
//
//  5. Notifications
//     - method: "auto" | "bus" | "fallback"
//
//  6. Privacy
//     - redact_location, redact_description
//
//  7. IPC
//     - listen_addr, heartbeat_interval_seconds, heartbeat_timeout_seconds
//
//  8. Logging
//     - level, format
package config

import "context"

// Config holds every daemon setting.
type Config struct {
	General struct {
		DataDir             string
		PlanningHorizonDays int
	}

	AI struct {
		Provider       string
		Model          string
		BaseURL        string
		APIKeyRef      string
		MaxRetries     int
		TimeoutSeconds int
	}

	ContextSources map[string]ContextSourceConfig

	Insights struct {
		TickIntervalSeconds        int
		MinAnalysisIntervalSeconds int
		MaxAnalysisIntervalSeconds int
		NearHorizonSeconds         int
		RetentionMaxCount          int
		RetentionMaxAgeSeconds     int64
		IdleTimeoutSeconds         int
	}

	Notifications struct {
		Method string
	}

	Privacy struct {
		RedactLocation    bool
		RedactDescription bool
	}

	IPC struct {
		ListenAddr               string
		HeartbeatIntervalSeconds int
		HeartbeatTimeoutSeconds  int
	}

	Logging struct {
		Level  string
		Format string
	}
}

// ContextSourceConfig configures one context_sources.<id> entry.
type ContextSourceConfig struct {
	Kind           string
	Enabled        bool
	TimeoutSeconds int
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates that the current configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration file changes and emits a coalesced
	// reload notification (at most one per 250ms) on the returned channel.
	// Only successfully validated reloads are emitted; a reload that fails
	// validation is rejected and the prior Config is retained.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources immediately.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager reading from configPath.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with the standard
// XDG config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager(DefaultConfigPath())
}
