package usecase

import (
	"context"
	"time"

	"SceneBroker/internal/ports"
)

// IngestScheduler binds the two interval drivers to the ingest cycle. Phase 1
// is cheap and runs often; Phase 2 is expensive and runs on its own, slower
// clock.
type IngestScheduler struct {
	reconcileDriver ports.Scheduler
	completeDriver  ports.Scheduler
	cycle           *IngestCycle
}

// NewIngestScheduler returns a helper to start/stop both recurring phases.
func NewIngestScheduler(reconcileDriver, completeDriver ports.Scheduler, cycle *IngestCycle) *IngestScheduler {
	return &IngestScheduler{
		reconcileDriver: reconcileDriver,
		completeDriver:  completeDriver,
		cycle:           cycle,
	}
}

// Start registers both phases with their drivers. Skipped single-flight
// triggers are not failures.
func (s *IngestScheduler) Start(ctx context.Context) error {
	if s.cycle == nil {
		return nil
	}

	// Pass failures are logged and alerted inside the cycle; the drivers just
	// keep ticking.
	if s.reconcileDriver != nil {
		job := func(time.Time) { _ = s.cycle.RunReconcile(ctx) }
		if err := s.reconcileDriver.Start(ctx, job); err != nil {
			return err
		}
	}

	if s.completeDriver != nil {
		job := func(time.Time) { _ = s.cycle.RunComplete(ctx) }
		if err := s.completeDriver.Start(ctx, job); err != nil {
			return err
		}
	}

	return nil
}

// Stop gracefully tears down both drivers.
func (s *IngestScheduler) Stop(ctx context.Context) error {
	if s.reconcileDriver != nil {
		if err := s.reconcileDriver.Stop(ctx); err != nil {
			return err
		}
	}
	if s.completeDriver != nil {
		return s.completeDriver.Stop(ctx)
	}
	return nil
}
