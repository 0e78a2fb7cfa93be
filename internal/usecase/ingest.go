package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"SceneBroker/internal/ports"
)

// Phase names used in logs and operator alerts.
const (
	PhaseReconcile = "reconcile"
	PhaseComplete  = "complete"
)

// ErrPassInFlight reports a trigger that fired while the same phase was still
// running; single-flight semantics skip it rather than stacking passes.
var ErrPassInFlight = errors.New("previous pass still running")

// IngestCycle ties the two ingest phases together: single-flight per phase,
// a wall-clock budget per pass, a connectivity check before any work, and
// operator alerting on pass-level failures.
type IngestCycle struct {
	reconciler *Reconciler
	completer  *Completer
	store      ports.SceneStore
	alerts     ports.AlertNotifier
	logger     *slog.Logger
	budget     time.Duration

	reconcileMu sync.Mutex
	completeMu  sync.Mutex
}

// NewIngestCycle wires both engines. budget bounds each pass; zero disables
// the bound.
func NewIngestCycle(reconciler *Reconciler, completer *Completer, store ports.SceneStore,
	alerts ports.AlertNotifier, logger *slog.Logger, budget time.Duration) *IngestCycle {
	return &IngestCycle{
		reconciler: reconciler,
		completer:  completer,
		store:      store,
		alerts:     alerts,
		logger:     logger,
		budget:     budget,
	}
}

// RunReconcile executes one Phase 1 pass under single-flight semantics.
func (c *IngestCycle) RunReconcile(ctx context.Context) error {
	if !c.reconcileMu.TryLock() {
		c.info("reconcile trigger skipped", "reason", ErrPassInFlight)
		return ErrPassInFlight
	}
	defer c.reconcileMu.Unlock()

	return c.runPass(ctx, PhaseReconcile, func(passCtx context.Context) error {
		_, err := c.reconciler.Run(passCtx)
		return err
	})
}

// RunComplete executes one Phase 2 pass under single-flight semantics.
func (c *IngestCycle) RunComplete(ctx context.Context) error {
	if !c.completeMu.TryLock() {
		c.info("complete trigger skipped", "reason", ErrPassInFlight)
		return ErrPassInFlight
	}
	defer c.completeMu.Unlock()

	return c.runPass(ctx, PhaseComplete, func(passCtx context.Context) error {
		_, err := c.completer.Run(passCtx)
		return err
	})
}

// RunOnce runs a full Phase 1 + Phase 2 cycle; this is the operational ingest
// trigger.
func (c *IngestCycle) RunOnce(ctx context.Context) error {
	if err := c.RunReconcile(ctx); err != nil {
		return err
	}
	return c.RunComplete(ctx)
}

func (c *IngestCycle) runPass(ctx context.Context, phase string, run func(context.Context) error) error {
	passCtx := ctx
	if c.budget > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, c.budget)
		defer cancel()
	}

	// Connectivity loss before any work starts aborts the pass outright.
	if err := c.store.Ping(passCtx); err != nil {
		c.alert(ctx, phase, err)
		return err
	}

	started := time.Now()
	if err := run(passCtx); err != nil {
		c.warn("ingest pass failed", "phase", phase, "error", err, "elapsed", time.Since(started))
		c.alert(ctx, phase, err)
		return err
	}

	c.info("ingest pass ok", "phase", phase, "elapsed", time.Since(started))
	return nil
}

func (c *IngestCycle) alert(ctx context.Context, phase string, passErr error) {
	if c.alerts == nil {
		return
	}
	if err := c.alerts.PassFailed(ctx, phase, passErr); err != nil {
		c.warn("operator alert failed", "phase", phase, "error", err)
	}
}

func (c *IngestCycle) info(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *IngestCycle) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
