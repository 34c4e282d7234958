package config

import (
	"os"
	"path/filepath"
)

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.General.DataDir = defaultDataDir()
	cfg.General.PlanningHorizonDays = 7

	cfg.AI.Provider = "anthropic"
	cfg.AI.Model = "claude-3-5-sonnet-20241022"
	cfg.AI.BaseURL = ""
	cfg.AI.APIKeyRef = "env:ANTHROPIC_API_KEY"
	cfg.AI.MaxRetries = 3
	cfg.AI.TimeoutSeconds = 30

	cfg.ContextSources = map[string]ContextSourceConfig{
		"demo": {Kind: "demo", Enabled: true, TimeoutSeconds: 5},
	}

	cfg.Insights.TickIntervalSeconds = 1800
	cfg.Insights.MinAnalysisIntervalSeconds = 300
	cfg.Insights.MaxAnalysisIntervalSeconds = 3600
	cfg.Insights.NearHorizonSeconds = 3600
	cfg.Insights.RetentionMaxCount = 500
	cfg.Insights.RetentionMaxAgeSeconds = 30 * 24 * 60 * 60
	cfg.Insights.IdleTimeoutSeconds = 300

	cfg.Notifications.Method = "auto"

	cfg.Privacy.RedactLocation = false
	cfg.Privacy.RedactDescription = false

	cfg.IPC.ListenAddr = "127.0.0.1:7890"
	cfg.IPC.HeartbeatIntervalSeconds = 10
	cfg.IPC.HeartbeatTimeoutSeconds = 30

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

// DefaultConfigPath returns the standard XDG config file location.
func DefaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "jasper", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "jasper-config.yaml")
	}
	return filepath.Join(home, ".config", "jasper", "config.yaml")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "jasper")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "jasper-data")
	}
	return filepath.Join(home, ".local", "share", "jasper")
}
