// Package daemon owns the main loop: the one goroutine that ticks the
// aggregator, consults the significance engine, drives the analysis
// pipeline, sweeps the frontend registry, and reacts to config reloads and
// shutdown signals. A select over a ticker, a work-request channel, and a
// done channel, all mutating state that only this goroutine touches.
package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heytcass/jasper/internal/audit"
	"github.com/heytcass/jasper/internal/canon"
	"github.com/heytcass/jasper/internal/config"
	"github.com/heytcass/jasper/internal/ipc"
	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/metrics"
	"github.com/heytcass/jasper/internal/model"
	"github.com/heytcass/jasper/internal/notify"
	"github.com/heytcass/jasper/internal/registry"
	"github.com/heytcass/jasper/internal/significance"
	"github.com/heytcass/jasper/internal/store"
)

// Aggregator is the subset of aggregator.Aggregator the controller drives;
// an interface so tests can substitute a fixed-sequence fake.
type Aggregator interface {
	Snapshot(ctx context.Context) (model.ContextSnapshot, error)
}

// SignificanceEngine is the subset of significance.Engine the controller
// drives.
type SignificanceEngine interface {
	Evaluate(baseline significance.Baseline, snapshot model.ContextSnapshot, forced bool) (model.Decision, significance.Baseline)
	Reset()
}

// Pipeline is the subset of pipeline.Pipeline the controller drives.
type Pipeline interface {
	Run(ctx context.Context, snapshot model.ContextSnapshot, fingerprint, provider, modelName string) (model.Insight, error)
}

// Deps bundles every collaborator the controller needs. All fields are
// required except Notifier, Log and Audit, which may be nil, and
// ConfigMgr, which the controller does not read.
type Deps struct {
	Aggregator   Aggregator
	Significance SignificanceEngine
	Pipeline     Pipeline
	Store        store.Store
	Registry     *registry.Registry
	IPC          *ipc.Service
	Notifier     notify.Notifier
	ConfigMgr    config.ConfigManager
	Log          *zap.Logger
	Audit        audit.Logger

	Provider string
	Model    string
}

// Controller is the daemon's single mutator of the significance baseline
// and the only caller of Pipeline.Run. Exactly one goroutine ever calls
// Run; every other subsystem reaches the controller only through the
// forceRefresh channel and through Reconfigure, which records new settings
// under mu for the Run goroutine to apply, so only that goroutine writes
// the baseline and the insight store.
type Controller struct {
	deps Deps

	tickInterval time.Duration
	idleTimeout  time.Duration
	sweepEvery   time.Duration

	baseline significance.Baseline

	forceRefresh chan forceRefreshRequest
	idleSince    time.Time
	idleSinceSet bool

	mu       sync.Mutex
	stopping bool
	online   bool

	reconfigPending   bool
	invalidatePending bool
}

type forceRefreshRequest struct {
	result chan forceRefreshResult
}

type forceRefreshResult struct {
	insight model.Insight
	changed bool
	err     error
}

// New builds a Controller. tickInterval and idleTimeout are read once at
// construction; a config reload that changes them takes effect on the next
// call to Reconfigure, which the caller's config-watch loop invokes.
func New(deps Deps, tickInterval, idleTimeout time.Duration) *Controller {
	return &Controller{
		deps:         deps,
		tickInterval: tickInterval,
		idleTimeout:  idleTimeout,
		sweepEvery:   10 * time.Second,
		forceRefresh: make(chan forceRefreshRequest, 8),
		online:       true,
	}
}

// Online reports whether the most recently completed tick produced a
// commit or ran with no error; it goes false the moment a tick fails
// (aggregation failure or pipeline error) and back to true the moment a
// later tick succeeds. Backs the IPC GetStatus surface.
func (c *Controller) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *Controller) setOnline(v bool) {
	c.mu.Lock()
	c.online = v
	c.mu.Unlock()
}

// ForceRefresh enqueues an out-of-band analysis request and blocks until
// the controller has processed it (or ctx is cancelled). It is safe to
// call from any goroutine, including concurrent IPC handlers; requests
// already queued when the main loop takes one are coalesced into that
// single analysis. A natural tick does not drain the queue. Intended for callers (tests, CLI
// tooling) that want the outcome; the IPC wire method does not use this,
// since its contract returns immediately after enqueuing (see
// TriggerForceRefresh).
func (c *Controller) ForceRefresh(ctx context.Context) (model.Insight, bool, error) {
	req := forceRefreshRequest{result: make(chan forceRefreshResult, 1)}
	select {
	case c.forceRefresh <- req:
	case <-ctx.Done():
		return model.Insight{}, false, ctx.Err()
	}
	select {
	case res := <-req.result:
		return res.insight, res.changed, res.err
	case <-ctx.Done():
		return model.Insight{}, false, ctx.Err()
	}
}

// TriggerForceRefresh enqueues an out-of-band analysis request and returns
// immediately, without waiting for the pipeline to run: this is the
// IPC-facing ForceRefresh contract, which answers "accepted" the moment
// the request is queued, not after analysis completes. The result channel
// is buffered so the main loop's send never blocks even though nobody
// reads it. Returns false only when the request queue is saturated.
func (c *Controller) TriggerForceRefresh() bool {
	req := forceRefreshRequest{result: make(chan forceRefreshResult, 1)}
	select {
	case c.forceRefresh <- req:
		return true
	default:
		return false
	}
}

// Reconfigure records a new tick interval and idle timeout and, when
// invalidateBaseline is set, marks the significance baseline for
// invalidation so the next tick re-evaluates from a clean state: horizon,
// privacy, or source-count changes all force a fresh baseline. The main
// loop applies both at the top of its next iteration, between ticks: it
// resets the ticker to the new interval and clears the baseline.
func (c *Controller) Reconfigure(tickInterval, idleTimeout time.Duration, invalidateBaseline bool) {
	c.mu.Lock()
	c.tickInterval = tickInterval
	c.idleTimeout = idleTimeout
	c.reconfigPending = true
	if invalidateBaseline {
		c.invalidatePending = true
	}
	c.mu.Unlock()
}

// Run is the daemon's main loop. It returns nil on an orderly shutdown
// (ctx cancellation, idle timeout, or an externally delivered stop) and
// never returns any other error; per-tick failures are absorbed and
// logged here rather than propagated to the caller.
func (c *Controller) Run(ctx context.Context) error {
	c.log().Info("daemon controller started",
		zap.Duration("tick_interval", c.tickInterval),
		zap.Duration("idle_timeout", c.idleTimeout))
	c.auditLog(ctx, audit.NewEvent(audit.EventDaemonStarted).WithResult(audit.ResultSuccess))

	ticker := time.NewTicker(c.currentTickInterval())
	defer ticker.Stop()

	sweep := time.NewTicker(c.sweepEvery)
	defer sweep.Stop()

	idleCheck := time.NewTicker(time.Second)
	defer idleCheck.Stop()

	for {
		c.mu.Lock()
		reconfig, invalidate := c.reconfigPending, c.invalidatePending
		c.reconfigPending, c.invalidatePending = false, false
		c.mu.Unlock()
		if reconfig {
			if invalidate {
				c.baseline = significance.Baseline{}
				c.deps.Significance.Reset()
			}
			c.resetTicker(ticker)
		}

		select {
		case <-ctx.Done():
			return c.shutdown()

		case req := <-c.forceRefresh:
			coalesced := c.drainCoalescedRefreshes()
			insight, changed, err := c.runTick(ctx, true)
			result := forceRefreshResult{insight: insight, changed: changed, err: err}
			req.result <- result
			for _, extra := range coalesced {
				extra.result <- result
			}
			if err == nil {
				c.resetTicker(ticker)
			}

		case <-ticker.C:
			if _, _, err := c.runTick(ctx, false); err != nil {
				c.log().Warn("tick failed", zap.Error(err))
			}

		case <-sweep.C:
			c.sweepRegistry()

		case <-idleCheck.C:
			if stop := c.checkIdle(); stop {
				return c.shutdown()
			}
		}
	}
}

// drainCoalescedRefreshes folds any ForceRefresh requests that arrived
// while this one was queued into a single tick, satisfying the invariant
// that N concurrently-accepted ForceRefresh calls schedule exactly one
// additional analysis, not N.
func (c *Controller) drainCoalescedRefreshes() []forceRefreshRequest {
	var extra []forceRefreshRequest
	for {
		select {
		case r := <-c.forceRefresh:
			extra = append(extra, r)
		default:
			return extra
		}
	}
}

func (c *Controller) currentTickInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickInterval
}

func (c *Controller) resetTicker(t *time.Ticker) {
	t.Reset(c.currentTickInterval())
}

// runTick executes one full cycle: aggregate, evaluate, and (if the
// decision triggers it) run the pipeline and broadcast the result. It is
// called from exactly one place in the select loop at a time, so it never
// races with itself.
func (c *Controller) runTick(ctx context.Context, forced bool) (model.Insight, bool, error) {
	snapshot, err := c.deps.Aggregator.Snapshot(ctx)
	if err != nil && jasperr.Is(err, jasperr.AggregationFailed) {
		c.log().Warn("tick abandoned: all context sources failed", zap.Error(err))
		c.setOnline(false)
		return model.Insight{}, false, nil
	}

	decision, nextBaseline := c.deps.Significance.Evaluate(c.baseline, snapshot, forced)
	metrics.SignificanceDecisionsTotal.WithLabelValues(string(decision.Kind)).Inc()
	c.log().Debug("significance decision", zap.String("kind", string(decision.Kind)), zap.String("reason", decision.Reason))
	if c.deps.Audit != nil {
		if err := c.deps.Audit.LogSignificanceEvaluated(ctx, string(decision.Kind), decision.Reason); err != nil {
			c.log().Warn("audit log failed", zap.Error(err))
		}
	}

	if decision.Kind != model.DecisionSignificant && decision.Kind != model.DecisionForced {
		c.baseline = nextBaseline
		if err := c.deps.Store.RecordEvaluation(ctx, canon.Fingerprint(snapshot.Items)); err != nil {
			c.log().Warn("record evaluation failed", zap.Error(err))
		}
		c.setOnline(true)
		current, err := c.deps.Store.Current(ctx)
		if err != nil {
			return model.Insight{}, false, nil
		}
		return current, false, nil
	}

	if c.deps.Audit != nil {
		if err := c.deps.Audit.LogPipelineStarted(ctx, nextBaseline.Fingerprint); err != nil {
			c.log().Warn("audit log failed", zap.Error(err))
		}
	}

	start := time.Now()
	insight, err := c.deps.Pipeline.Run(ctx, snapshot, nextBaseline.Fingerprint, c.deps.Provider, c.deps.Model)
	metrics.PipelineRunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		c.log().Warn("pipeline run failed, baseline not advanced", zap.Error(err))
		if c.deps.Audit != nil {
			if aerr := c.deps.Audit.LogPipelineFailed(ctx, err); aerr != nil {
				c.log().Warn("audit log failed", zap.Error(aerr))
			}
		}
		// Baseline advances only on success: the next tick re-evaluates
		// against the unchanged baseline and may retry naturally.
		c.setOnline(false)
		return model.Insight{}, false, err
	}
	c.setOnline(true)
	metrics.PipelineRunsTotal.WithLabelValues("committed").Inc()
	if c.deps.Audit != nil {
		if aerr := c.deps.Audit.LogPipelineCommitted(ctx, insight.ID, time.Since(start)); aerr != nil {
			c.log().Warn("audit log failed", zap.Error(aerr))
		}
	}

	c.baseline = nextBaseline
	c.deps.IPC.BroadcastInsightUpdated(insight)
	if c.deps.Notifier != nil {
		if nerr := c.deps.Notifier.Notify(insight); nerr != nil {
			c.log().Warn("notification dispatch failed", zap.Error(nerr))
		}
	}
	return insight, true, nil
}

func (c *Controller) sweepRegistry() {
	evicted := c.deps.Registry.Sweep()
	for _, id := range evicted {
		metrics.FrontendsEvictedTotal.Inc()
		if c.deps.Audit != nil {
			if err := c.deps.Audit.LogFrontendEvicted(context.Background(), id); err != nil {
				c.log().Warn("audit log failed", zap.Error(err))
			}
		}
	}
	metrics.FrontendsActive.Set(float64(c.deps.Registry.Count()))
	if len(evicted) > 0 {
		c.log().Info("frontend liveness sweep evicted stale registrations", zap.Int("count", len(evicted)))
	}
}

// checkIdle implements the idle-shutdown predicate: if the frontend
// registry has had zero entries continuously for idleTimeout, the daemon
// exits. A non-zero count resets the idle clock.
func (c *Controller) checkIdle() bool {
	c.mu.Lock()
	idleTimeout := c.idleTimeout
	c.mu.Unlock()

	if idleTimeout <= 0 {
		return false
	}
	if c.deps.Registry.Count() > 0 {
		c.idleSinceSet = false
		return false
	}
	if !c.idleSinceSet {
		c.idleSince = time.Now()
		c.idleSinceSet = true
		return false
	}
	if time.Since(c.idleSince) >= idleTimeout {
		c.log().Info("idle timeout elapsed with no attached frontends, shutting down")
		return true
	}
	return false
}

// shutdown runs the daemon's graceful shutdown sequence once: signal
// frontends, close the IPC service's background resources, flush the
// store. It is idempotent so both a ctx cancellation and an idle timeout
// reaching this code path concurrently (they can't, both run on this same
// goroutine) would be safe either way.
func (c *Controller) shutdown() error {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	c.mu.Unlock()

	c.log().Info("daemon stopping")
	c.auditLog(context.Background(), audit.NewEvent(audit.EventDaemonStopping).WithResult(audit.ResultSuccess))
	c.deps.IPC.BroadcastDaemonStopping()
	c.deps.IPC.Close()
	if err := c.deps.Store.Close(); err != nil {
		c.log().Warn("error closing store during shutdown", zap.Error(err))
	}
	if c.deps.Audit != nil {
		if err := c.deps.Audit.Close(); err != nil {
			c.log().Warn("error closing audit logger during shutdown", zap.Error(err))
		}
	}
	return nil
}

func (c *Controller) log() *zap.Logger {
	if c.deps.Log != nil {
		return c.deps.Log
	}
	return zap.NewNop()
}

func (c *Controller) auditLog(ctx context.Context, event *audit.Event) {
	if c.deps.Audit == nil {
		return
	}
	if err := c.deps.Audit.Log(ctx, event); err != nil {
		c.log().Warn("audit log failed", zap.Error(err))
	}
}
