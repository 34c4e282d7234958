package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const reloadDebounce = 250 * time.Millisecond

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string

	mu     sync.RWMutex
	config *Config
	viper  *viper.Viper

	watchChan  chan Config
	debounce   *time.Timer
	debounceMu sync.Mutex
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("JASPER")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := m.unmarshalConfig()
	if err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates that the current configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	cfg := m.Get(ctx)
	return validateConfig(cfg)
}

func validateConfig(cfg *Config) error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Watch watches the config file for changes and emits a coalesced reload
// notification on the returned channel. Writes within reloadDebounce of each
// other collapse into a single reload. A reload that fails validation is
// rejected and the prior Config is retained and never sent downstream.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.debounceMu.Lock()
		if m.debounce != nil {
			m.debounce.Stop()
		}
		m.debounce = time.AfterFunc(reloadDebounce, func() {
			if err := m.Reload(ctx); err != nil {
				return
			}
			select {
			case m.watchChan <- *m.Get(ctx):
			default:
			}
		})
		m.debounceMu.Unlock()
	})
	m.viper.WatchConfig()

	return m.watchChan
}

// Reload reloads configuration from sources immediately. A config that fails
// validation is rejected; the manager keeps serving the previously loaded
// configuration.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := m.unmarshalConfig()
	if err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// setDefaults seeds viper with DefaultConfig's values.
func (m *viperConfigManager) setDefaults() {
	d := DefaultConfig()

	m.viper.SetDefault("general.data_dir", d.General.DataDir)
	m.viper.SetDefault("general.planning_horizon_days", d.General.PlanningHorizonDays)

	m.viper.SetDefault("ai.provider", d.AI.Provider)
	m.viper.SetDefault("ai.model", d.AI.Model)
	m.viper.SetDefault("ai.base_url", d.AI.BaseURL)
	m.viper.SetDefault("ai.api_key_ref", d.AI.APIKeyRef)
	m.viper.SetDefault("ai.max_retries", d.AI.MaxRetries)
	m.viper.SetDefault("ai.timeout_seconds", d.AI.TimeoutSeconds)

	sources := make(map[string]interface{}, len(d.ContextSources))
	for id, src := range d.ContextSources {
		sources[id] = map[string]interface{}{
			"kind":            src.Kind,
			"enabled":         src.Enabled,
			"timeout_seconds": src.TimeoutSeconds,
		}
	}
	m.viper.SetDefault("context_sources", sources)

	m.viper.SetDefault("insights.tick_interval_seconds", d.Insights.TickIntervalSeconds)
	m.viper.SetDefault("insights.min_analysis_interval_seconds", d.Insights.MinAnalysisIntervalSeconds)
	m.viper.SetDefault("insights.max_analysis_interval_seconds", d.Insights.MaxAnalysisIntervalSeconds)
	m.viper.SetDefault("insights.near_horizon_seconds", d.Insights.NearHorizonSeconds)
	m.viper.SetDefault("insights.retention_max_count", d.Insights.RetentionMaxCount)
	m.viper.SetDefault("insights.retention_max_age_seconds", d.Insights.RetentionMaxAgeSeconds)
	m.viper.SetDefault("insights.idle_timeout_seconds", d.Insights.IdleTimeoutSeconds)

	m.viper.SetDefault("notifications.method", d.Notifications.Method)

	m.viper.SetDefault("privacy.redact_location", d.Privacy.RedactLocation)
	m.viper.SetDefault("privacy.redact_description", d.Privacy.RedactDescription)

	m.viper.SetDefault("ipc.listen_addr", d.IPC.ListenAddr)
	m.viper.SetDefault("ipc.heartbeat_interval_seconds", d.IPC.HeartbeatIntervalSeconds)
	m.viper.SetDefault("ipc.heartbeat_timeout_seconds", d.IPC.HeartbeatTimeoutSeconds)

	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
}

// unmarshalConfig builds a Config from the current viper state.
func (m *viperConfigManager) unmarshalConfig() (*Config, error) {
	cfg := &Config{}

	cfg.General.DataDir = m.viper.GetString("general.data_dir")
	cfg.General.PlanningHorizonDays = m.viper.GetInt("general.planning_horizon_days")

	cfg.AI.Provider = m.viper.GetString("ai.provider")
	cfg.AI.Model = m.viper.GetString("ai.model")
	cfg.AI.BaseURL = m.viper.GetString("ai.base_url")
	cfg.AI.APIKeyRef = m.viper.GetString("ai.api_key_ref")
	cfg.AI.MaxRetries = m.viper.GetInt("ai.max_retries")
	cfg.AI.TimeoutSeconds = m.viper.GetInt("ai.timeout_seconds")

	cfg.ContextSources = make(map[string]ContextSourceConfig)
	raw := m.viper.GetStringMap("context_sources")
	for id := range raw {
		prefix := "context_sources." + id + "."
		cfg.ContextSources[id] = ContextSourceConfig{
			Kind:           m.viper.GetString(prefix + "kind"),
			Enabled:        m.viper.GetBool(prefix + "enabled"),
			TimeoutSeconds: m.viper.GetInt(prefix + "timeout_seconds"),
		}
	}

	cfg.Insights.TickIntervalSeconds = m.viper.GetInt("insights.tick_interval_seconds")
	cfg.Insights.MinAnalysisIntervalSeconds = m.viper.GetInt("insights.min_analysis_interval_seconds")
	cfg.Insights.MaxAnalysisIntervalSeconds = m.viper.GetInt("insights.max_analysis_interval_seconds")
	cfg.Insights.NearHorizonSeconds = m.viper.GetInt("insights.near_horizon_seconds")
	cfg.Insights.RetentionMaxCount = m.viper.GetInt("insights.retention_max_count")
	cfg.Insights.RetentionMaxAgeSeconds = m.viper.GetInt64("insights.retention_max_age_seconds")
	cfg.Insights.IdleTimeoutSeconds = m.viper.GetInt("insights.idle_timeout_seconds")

	cfg.Notifications.Method = m.viper.GetString("notifications.method")

	cfg.Privacy.RedactLocation = m.viper.GetBool("privacy.redact_location")
	cfg.Privacy.RedactDescription = m.viper.GetBool("privacy.redact_description")

	cfg.IPC.ListenAddr = m.viper.GetString("ipc.listen_addr")
	cfg.IPC.HeartbeatIntervalSeconds = m.viper.GetInt("ipc.heartbeat_interval_seconds")
	cfg.IPC.HeartbeatTimeoutSeconds = m.viper.GetInt("ipc.heartbeat_timeout_seconds")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")

	return cfg, nil
}
