package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.General.DataDir == "" {
		errs = append(errs, &ValidationError{
			Field:   "general.data_dir",
			Message: "data_dir is required",
		})
	}
	if c.General.PlanningHorizonDays < 0 {
		errs = append(errs, &ValidationError{
			Field:   "general.planning_horizon_days",
			Message: "cannot be negative",
		})
	}

	validProviders := map[string]bool{"anthropic": true, "openai": true, "ollama": true}
	if !validProviders[c.AI.Provider] {
		errs = append(errs, &ValidationError{
			Field:   "ai.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: anthropic, openai, ollama", c.AI.Provider),
		})
	}

	if c.AI.Model == "" {
		errs = append(errs, &ValidationError{
			Field:   "ai.model",
			Message: "model is required",
		})
	}

	if c.AI.Provider != "ollama" && c.AI.APIKeyRef == "" {
		errs = append(errs, &ValidationError{
			Field:   "ai.api_key_ref",
			Message: "api_key_ref is required for this provider",
		})
	}
	if c.AI.APIKeyRef != "" && !strings.Contains(c.AI.APIKeyRef, ":") {
		errs = append(errs, &ValidationError{
			Field:   "ai.api_key_ref",
			Message: "api_key_ref must be of the form backend:key, e.g. env:ANTHROPIC_API_KEY",
		})
	}

	if c.AI.MaxRetries < 0 {
		errs = append(errs, &ValidationError{
			Field:   "ai.max_retries",
			Message: "max_retries cannot be negative",
		})
	}

	if c.AI.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ai.timeout_seconds",
			Message: fmt.Sprintf("timeout_seconds must be at least 1, got %d", c.AI.TimeoutSeconds),
		})
	}

	if len(c.ContextSources) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "context_sources",
			Message: "at least one context source must be configured",
		})
	}
	for id, src := range c.ContextSources {
		if src.Kind == "" {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("context_sources.%s.kind", id),
				Message: "kind is required",
			})
		}
		if src.TimeoutSeconds < 1 {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("context_sources.%s.timeout_seconds", id),
				Message: "timeout_seconds must be at least 1",
			})
		}
	}

	if c.Insights.TickIntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "insights.tick_interval_seconds",
			Message: "must be at least 1",
		})
	}
	if c.Insights.IdleTimeoutSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "insights.idle_timeout_seconds",
			Message: "cannot be negative",
		})
	}
	if c.Insights.MinAnalysisIntervalSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "insights.min_analysis_interval_seconds",
			Message: "cannot be negative",
		})
	}
	if c.Insights.MaxAnalysisIntervalSeconds < c.Insights.MinAnalysisIntervalSeconds {
		errs = append(errs, &ValidationError{
			Field:   "insights.max_analysis_interval_seconds",
			Message: "must be >= min_analysis_interval_seconds",
		})
	}
	if c.Insights.NearHorizonSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "insights.near_horizon_seconds",
			Message: "cannot be negative",
		})
	}
	if c.Insights.RetentionMaxCount < 1 {
		errs = append(errs, &ValidationError{
			Field:   "insights.retention_max_count",
			Message: "must be at least 1",
		})
	}

	validMethods := map[string]bool{"auto": true, "bus": true, "fallback": true}
	if !validMethods[c.Notifications.Method] {
		errs = append(errs, &ValidationError{
			Field:   "notifications.method",
			Message: fmt.Sprintf("invalid method '%s', must be one of: auto, bus, fallback", c.Notifications.Method),
		})
	}

	if c.IPC.ListenAddr == "" {
		errs = append(errs, &ValidationError{
			Field:   "ipc.listen_addr",
			Message: "listen_addr is required",
		})
	} else if _, _, err := net.SplitHostPort(c.IPC.ListenAddr); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "ipc.listen_addr",
			Message: fmt.Sprintf("invalid address format (expected host:port): %v", err),
		})
	}

	if c.IPC.HeartbeatIntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ipc.heartbeat_interval_seconds",
			Message: "must be at least 1",
		})
	}
	if c.IPC.HeartbeatTimeoutSeconds <= c.IPC.HeartbeatIntervalSeconds {
		errs = append(errs, &ValidationError{
			Field:   "ipc.heartbeat_timeout_seconds",
			Message: "must be greater than heartbeat_interval_seconds",
		})
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	return errs
}
