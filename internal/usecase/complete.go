package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"SceneBroker/internal/ports"
)

const (
	defaultWorkers         = 8
	defaultCompletionLimit = 200
	defaultClaimLease      = 15 * time.Minute
	defaultFetchTimeout    = 30 * time.Second
)

// Completer is ingest Phase 2: it claims partial records, fetches and parses
// each scene's supplementary metadata, and flips the record to complete.
type Completer struct {
	source  ports.MetadataSource
	store   ports.SceneStore
	logger  *slog.Logger
	workers int
	limit   int
	lease   time.Duration
	timeout time.Duration
}

// CompleteStats summarizes one completion pass.
type CompleteStats struct {
	Claimed   int
	Completed int
	Failed    int
}

// CompleterOptions tunes the worker pool and claim behavior. Zero fields fall
// back to defaults.
type CompleterOptions struct {
	Workers      int
	Limit        int
	ClaimLease   time.Duration
	FetchTimeout time.Duration
}

// NewCompleter wires the metadata source and store.
func NewCompleter(source ports.MetadataSource, store ports.SceneStore, logger *slog.Logger, opts CompleterOptions) *Completer {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultCompletionLimit
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = defaultClaimLease
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	return &Completer{
		source:  source,
		store:   store,
		logger:  logger,
		workers: opts.Workers,
		limit:   opts.Limit,
		lease:   opts.ClaimLease,
		timeout: opts.FetchTimeout,
	}
}

// Run claims one batch of partial records and completes them with bounded
// concurrency. A failing scene is logged, its claim released, and the record
// stays partial for the next pass; it never blocks or fails its siblings.
func (c *Completer) Run(ctx context.Context) (CompleteStats, error) {
	claimed, err := c.store.ClaimPartial(ctx, c.limit, c.lease)
	if err != nil {
		return CompleteStats{}, fmt.Errorf("claim partial records: %w", err)
	}

	stats := CompleteStats{Claimed: len(claimed)}
	if len(claimed) == 0 {
		return stats, nil
	}

	var completed, failed atomic.Int64

	// Per-scene errors are absorbed inside the worker so one bad scene cannot
	// cancel the group.
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.workers)

	for _, rec := range claimed {
		group.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(groupCtx, c.timeout)
			defer cancel()

			meta, err := c.source.FetchMetadata(fetchCtx, rec.SourceBaseURL, rec.SceneID)
			if err != nil {
				failed.Add(1)
				c.warn("scene completion failed", "scene_id", rec.SceneID, "error", err)
				c.release(ctx, rec.SourceType, rec.SceneID)
				return nil
			}

			if err := c.store.CompleteScene(ctx, rec.SourceType, rec.SceneID, meta.OffNadirAngle); err != nil {
				failed.Add(1)
				c.warn("scene update failed", "scene_id", rec.SceneID, "error", err)
				c.release(ctx, rec.SourceType, rec.SceneID)
				return nil
			}

			completed.Add(1)
			return nil
		})
	}

	_ = group.Wait()

	stats.Completed = int(completed.Load())
	stats.Failed = int(failed.Load())

	c.info("completion pass finished",
		"claimed", stats.Claimed,
		"completed", stats.Completed,
		"failed", stats.Failed)

	return stats, ctx.Err()
}

// release returns a scene to the claimable pool early instead of waiting for
// its lease to lapse.
func (c *Completer) release(ctx context.Context, sourceType, sceneID string) {
	if err := c.store.ReleaseClaim(ctx, sourceType, sceneID); err != nil {
		c.warn("release claim failed, lease will expire", "scene_id", sceneID, "error", err)
	}
}

func (c *Completer) info(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Completer) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
