package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"SceneBroker/internal/domain"
	"SceneBroker/internal/ports"
)

const defaultBatchSize = 500

// Reconciler is ingest Phase 1: it diffs the remote bulk listing against the
// store and inserts the scenes that are missing, leaving existing records
// untouched.
type Reconciler struct {
	source    ports.ListingSource
	store     ports.SceneStore
	logger    *slog.Logger
	batchSize int
}

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	Inserted      int
	Existing      int
	SkippedRows   int
	FailedBatches int
}

// NewReconciler wires the listing source and store; batchSize bounds each
// insert transaction.
func NewReconciler(source ports.ListingSource, store ports.SceneStore, logger *slog.Logger, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Reconciler{source: source, store: store, logger: logger, batchSize: batchSize}
}

// Run streams the listing once. A bulk fetch failure aborts the pass with the
// store unchanged; malformed rows and rows without a computable footprint are
// skipped and logged; a failed sub-batch rolls back alone while committed
// sub-batches remain.
func (r *Reconciler) Run(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	seq, err := r.source.FetchListing(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch listing: %w", err)
	}

	batch := make([]domain.RemoteSceneListing, 0, r.batchSize)
	for entry, rowErr := range seq {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if rowErr != nil {
			stats.SkippedRows++
			r.warn("skipping listing row", "error", rowErr)
			continue
		}

		batch = append(batch, entry)
		if len(batch) >= r.batchSize {
			r.flush(ctx, batch, &stats)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		r.flush(ctx, batch, &stats)
	}

	r.info("reconciliation pass finished",
		"inserted", stats.Inserted,
		"existing", stats.Existing,
		"skipped_rows", stats.SkippedRows,
		"failed_batches", stats.FailedBatches)

	return stats, nil
}

// flush inserts one sub-batch in its own transaction. The existence pre-check
// trims the insert set; the store's conflict handling keeps replays
// idempotent even when another pass races the check.
func (r *Reconciler) flush(ctx context.Context, batch []domain.RemoteSceneListing, stats *ReconcileStats) {
	ids := make([]string, len(batch))
	for i, entry := range batch {
		ids[i] = entry.SceneID
	}

	existing, err := r.store.ExistingIDs(ctx, batch[0].SourceType, ids)
	if err != nil {
		stats.FailedBatches++
		r.warn("existence check failed, sub-batch retried next pass", "error", err, "rows", len(batch))
		return
	}

	records := make([]domain.SceneRecord, 0, len(batch))
	for _, entry := range batch {
		if existing[entry.SceneID] {
			stats.Existing++
			continue
		}
		records = append(records, entry.Record())
	}
	if len(records) == 0 {
		return
	}

	inserted, err := r.store.InsertBatch(ctx, records)
	if err != nil {
		stats.FailedBatches++
		r.warn("sub-batch insert failed, retried next pass", "error", err, "rows", len(records))
		return
	}

	stats.Inserted += inserted
	stats.Existing += len(records) - inserted
}

func (r *Reconciler) info(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Reconciler) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
