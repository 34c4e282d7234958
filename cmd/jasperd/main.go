// Package main is the entry point for the Jasper personal insight daemon.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables, and defaults
//   - Open the SQLite-backed insight store and apply pending migrations
//   - Resolve the configured LLM provider's API key via the secret resolver
//   - Wire the context aggregator, significance engine, and analysis pipeline
//   - Start the IPC service (HTTP + WebSocket) frontends attach to
//   - Run the lifecycle controller's main loop until shutdown
//   - Watch the config file for hot-reloadable changes and apply them
//     strictly after the in-flight pipeline run commits or errors
//   - Implement graceful shutdown on SIGINT/SIGTERM or idle timeout
//
// Data Flow:
//  1. Lifecycle controller ticks -> aggregator builds a ContextSnapshot
//  2. Significance engine classifies the transition against the baseline
//  3. On Significant/Forced, the analysis pipeline calls the LLM and commits
//  4. IPC service broadcasts InsightUpdated to every attached frontend
//
// Exit Codes: see internal/daemon.ExitCode.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/heytcass/jasper/internal/aggregator"
	"github.com/heytcass/jasper/internal/audit"
	"github.com/heytcass/jasper/internal/config"
	"github.com/heytcass/jasper/internal/daemon"
	"github.com/heytcass/jasper/internal/ipc"
	"github.com/heytcass/jasper/internal/llm"
	"github.com/heytcass/jasper/internal/notify"
	"github.com/heytcass/jasper/internal/pipeline"
	"github.com/heytcass/jasper/internal/registry"
	"github.com/heytcass/jasper/internal/secret"
	"github.com/heytcass/jasper/internal/significance"
	"github.com/heytcass/jasper/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	log, err := buildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jasperd: failed to build logger: %v\n", err)
		return int(daemon.ExitConfigFatal)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configMgr, err := config.NewConfigManagerWithDefaults()
	if err != nil {
		log.Error("failed to build config manager", zap.Error(err))
		return int(daemon.ExitConfigFatal)
	}
	if err := configMgr.Load(ctx); err != nil {
		log.Error("failed to load config", zap.Error(err))
		return int(daemon.ExitConfigFatal)
	}
	if err := configMgr.Validate(ctx); err != nil {
		log.Error("config failed validation", zap.Error(err))
		return int(daemon.ExitConfigFatal)
	}
	cfg := configMgr.Get(ctx)
	log.Info("configuration loaded", zap.String("provider", cfg.AI.Provider), zap.String("model", cfg.AI.Model))

	if err := os.MkdirAll(cfg.General.DataDir, 0o700); err != nil {
		log.Error("failed to create data directory", zap.String("dir", cfg.General.DataDir), zap.Error(err))
		return int(daemon.ExitConfigFatal)
	}

	st, err := store.NewSQLiteStore(filepath.Join(cfg.General.DataDir, "state.db"))
	if err != nil {
		log.Error("failed to open insight store", zap.Error(err))
		return int(daemon.ExitStoreFatal)
	}
	defer st.Close()

	resolver, err := secret.NewResolver(filepath.Join(cfg.General.DataDir, "keystore.enc"), keystoreKey())
	if err != nil {
		log.Error("failed to build secret resolver", zap.Error(err))
		return int(daemon.ExitConfigFatal)
	}

	apiKey := ""
	if cfg.AI.Provider != "ollama" {
		apiKey, err = resolver.Resolve(cfg.AI.APIKeyRef)
		if err != nil {
			log.Error("failed to resolve AI provider secret", zap.Error(err))
			return int(daemon.ExitConfigFatal)
		}
	}

	llmClient, err := llm.New(llm.ProviderConfig{
		Provider:   cfg.AI.Provider,
		APIKey:     apiKey,
		Model:      cfg.AI.Model,
		BaseURL:    cfg.AI.BaseURL,
		MaxRetries: cfg.AI.MaxRetries,
	})
	if err != nil {
		log.Error("failed to build LLM client", zap.Error(err))
		return int(daemon.ExitConfigFatal)
	}

	agg := aggregator.New(daemon.BuildSources(cfg.ContextSources), daemon.SourceTimeouts(cfg.ContextSources), daemon.DefaultSourceTimeout, cfg.General.PlanningHorizonDays, log)

	sigEngine := significance.New(significance.Config{
		MinAnalysisInterval: time.Duration(cfg.Insights.MinAnalysisIntervalSeconds) * time.Second,
		NearHorizon:         time.Duration(cfg.Insights.NearHorizonSeconds) * time.Second,
		MaxAnalysisInterval: time.Duration(cfg.Insights.MaxAnalysisIntervalSeconds) * time.Second,
	})

	pl := pipeline.New(llmClient, st, log)
	reg := registry.New(time.Duration(cfg.IPC.HeartbeatTimeoutSeconds) * time.Second)
	notifier := notify.NewLoggingNotifier(notify.Method(cfg.Notifications.Method), log)

	auditCfg := audit.DefaultConfig()
	auditCfg.EventLogPath = filepath.Join(cfg.General.DataDir, "logs", "events.log")
	auditCfg.AppLogPath = filepath.Join(cfg.General.DataDir, "logs", "app.log")
	auditLog, err := audit.NewLogger(auditCfg)
	if err != nil {
		log.Error("failed to build audit logger", zap.Error(err))
		return int(daemon.ExitConfigFatal)
	}

	// ctrl is referenced by the IPC service's ForceRefresh closure before it
	// exists; both sides only capture the pointer, which is filled in below
	// before the controller's Run loop (the only reader of the request
	// channel) can start, so there is no actual race.
	var ctrl *daemon.Controller
	forceRefresh := func() bool {
		return ctrl.TriggerForceRefresh()
	}
	online := func() bool {
		return ctrl.Online()
	}

	ipcSvc := ipc.New(st, reg, forceRefresh, online, 6, log)
	defer ipcSvc.Close()

	ctrl = daemon.New(daemon.Deps{
		Aggregator:   agg,
		Significance: sigEngine,
		Pipeline:     pl,
		Store:        st,
		Registry:     reg,
		IPC:          ipcSvc,
		Notifier:     notifier,
		ConfigMgr:    configMgr,
		Log:          log,
		Audit:        auditLog,
		Provider:     cfg.AI.Provider,
		Model:        cfg.AI.Model,
	}, time.Duration(cfg.Insights.TickIntervalSeconds)*time.Second, time.Duration(cfg.Insights.IdleTimeoutSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/", ipcSvc.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	httpSrv := &http.Server{Addr: cfg.IPC.ListenAddr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("ipc service listening", zap.String("addr", cfg.IPC.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	go watchConfig(ctx, configMgr, ctrl, auditLog, log)

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	select {
	case err := <-serveErr:
		log.Error("ipc listener failed", zap.Error(err))
		stop()
		<-runErr
		return int(daemon.ExitIPCBindFatal)
	case <-runErr:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("ipc listener did not shut down cleanly", zap.Error(err))
			return int(daemon.ExitDrainTimeout)
		}
	}

	log.Info("daemon exited cleanly")
	return int(daemon.ExitClean)
}

// watchConfig applies hot-reloadable config changes (tick interval, idle
// timeout, and baseline-invalidating changes to horizon/privacy) to the
// running controller. The new config is read by the controller's next
// loop iteration only, never mid-tick.
func watchConfig(ctx context.Context, mgr config.ConfigManager, ctrl *daemon.Controller, auditLog audit.Logger, log *zap.Logger) {
	changes := mgr.Watch(ctx)
	var prev *config.Config
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-changes:
			if !ok {
				return
			}
			invalidate := prev != nil && (prev.Insights.NearHorizonSeconds != cfg.Insights.NearHorizonSeconds ||
				prev.Privacy.RedactLocation != cfg.Privacy.RedactLocation ||
				prev.Privacy.RedactDescription != cfg.Privacy.RedactDescription ||
				len(prev.ContextSources) != len(cfg.ContextSources))
			ctrl.Reconfigure(
				time.Duration(cfg.Insights.TickIntervalSeconds)*time.Second,
				time.Duration(cfg.Insights.IdleTimeoutSeconds)*time.Second,
				invalidate,
			)
			log.Info("config reloaded", zap.Bool("baseline_invalidated", invalidate))
			if err := auditLog.LogConfigReloaded(ctx); err != nil {
				log.Warn("audit log failed", zap.Error(err))
			}
			c := cfg
			prev = &c
		}
	}
}

func buildLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// keystoreKey derives the keystore AES-256 key from JASPER_KEYSTORE_KEY_HEX
// (64 hex chars). Without it, the keystore secret backend is unusable for
// this process; the default config's api_key_ref uses the env backend, so
// a fresh install works with no keystore configured at all.
func keystoreKey() []byte {
	key := make([]byte, 32)
	raw := os.Getenv("JASPER_KEYSTORE_KEY_HEX")
	if raw == "" {
		return key
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return key
	}
	return decoded
}

