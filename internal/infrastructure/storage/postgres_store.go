// Package storage persists the scene catalog in Postgres/PostGIS. The schema
// lives in schema.sql next to this file.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"

	"SceneBroker/internal/domain"
	"SceneBroker/internal/ports"
)

const sridWGS84 = 4326

// sceneColumns is the shared select list; aoi is always read back as EWKB.
const sceneColumns = "product_id, source_type, capture_date, cloud_cover, scene_url, " +
	"ST_AsEWKB(aoi), off_nadir_angle, completeness_state, created_at, updated_at"

// PostgresStore implements ports.SceneStore on a pooled *sql.DB.
type PostgresStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.SceneStore = (*PostgresStore)(nil)

// NewPostgresStore wires an externally owned connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Open builds the connection pool and verifies connectivity.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// ExistingIDs returns a map with the scene IDs that already exist in storage.
func (s *PostgresStore) ExistingIDs(ctx context.Context, sourceType string, ids []string) (map[string]bool, error) {
	result := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT product_id FROM scenes WHERE source_type = $1 AND product_id = ANY($2)`

	rows, err := s.db.QueryContext(ctx, query, sourceType, pq.StringArray(ids))
	if err != nil {
		return nil, &domain.StoreError{Op: "query existing ids", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &domain.StoreError{Op: "scan existing id", Err: err}
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "iterate existing ids", Err: err}
	}

	return result, nil
}

// InsertBatch writes the records as one transaction. A conflicting product_id
// is skipped, never overwritten, so replaying a listing is idempotent.
func (s *PostgresStore) InsertBatch(ctx context.Context, records []domain.SceneRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &domain.StoreError{Op: "begin insert batch", Err: err}
	}

	inserted := 0
	for _, rec := range records {
		query, args, err := s.builder.
			Insert("scenes").
			Columns("source_type", "product_id", "capture_date", "cloud_cover",
				"scene_url", "aoi", "completeness_state").
			Values(rec.SourceType, rec.SceneID, rec.CaptureDate, rec.CloudCover,
				rec.SourceBaseURL,
				sq.Expr("ST_GeomFromEWKB(?)", ewkb.Value(rec.Footprint, sridWGS84)),
				string(domain.CompletenessPartial)).
			Suffix("ON CONFLICT (source_type, product_id) DO NOTHING").
			ToSql()
		if err != nil {
			_ = tx.Rollback()
			return 0, &domain.StoreError{Op: "build insert", Err: err}
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, &domain.StoreError{Op: fmt.Sprintf("insert %s", rec.SceneID), Err: err}
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &domain.StoreError{Op: "commit insert batch", Err: err}
	}

	return inserted, nil
}

// ClaimPartial leases up to limit partial records in one atomic statement.
// SKIP LOCKED keeps concurrent passes from blocking on each other, and the
// lease window lets a crashed worker's claims lapse back into the pool.
func (s *PostgresStore) ClaimPartial(ctx context.Context, limit int, lease time.Duration) ([]domain.SceneRecord, error) {
	query := `
		UPDATE scenes
		SET claimed_until = NOW() + make_interval(secs => $1), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM scenes
			WHERE completeness_state = $2
			  AND (claimed_until IS NULL OR claimed_until < NOW())
			ORDER BY capture_date
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + sceneColumns

	rows, err := s.db.QueryContext(ctx, query,
		lease.Seconds(), string(domain.CompletenessPartial), limit)
	if err != nil {
		return nil, &domain.StoreError{Op: "claim partial", Err: err}
	}
	defer rows.Close()

	var claimed []domain.SceneRecord
	for rows.Next() {
		rec, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "iterate claimed", Err: err}
	}

	return claimed, nil
}

// CompleteScene fills the derived fields and flips one claimed record to
// complete. The completeness predicate makes the transition monotone.
func (s *PostgresStore) CompleteScene(ctx context.Context, sourceType, sceneID string, offNadirAngle float64) error {
	query, args, err := s.builder.
		Update("scenes").
		Set("off_nadir_angle", offNadirAngle).
		Set("completeness_state", string(domain.CompletenessComplete)).
		Set("claimed_until", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{
			"source_type":        sourceType,
			"product_id":         sceneID,
			"completeness_state": string(domain.CompletenessPartial),
		}).
		ToSql()
	if err != nil {
		return &domain.StoreError{Op: "build complete", Err: err}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &domain.StoreError{Op: fmt.Sprintf("complete %s", sceneID), Err: err}
	}
	return nil
}

// ReleaseClaim drops the lease of a record whose completion attempt failed.
func (s *PostgresStore) ReleaseClaim(ctx context.Context, sourceType, sceneID string) error {
	query, args, err := s.builder.
		Update("scenes").
		Set("claimed_until", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{
			"source_type":        sourceType,
			"product_id":         sceneID,
			"completeness_state": string(domain.CompletenessPartial),
		}).
		ToSql()
	if err != nil {
		return &domain.StoreError{Op: "build release", Err: err}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &domain.StoreError{Op: fmt.Sprintf("release %s", sceneID), Err: err}
	}
	return nil
}

// FindBySceneID loads one record or reports domain.ErrNotFound.
func (s *PostgresStore) FindBySceneID(ctx context.Context, sourceType, sceneID string) (domain.SceneRecord, error) {
	query, args, err := s.builder.
		Select(sceneColumns).
		From("scenes").
		Where(sq.Eq{"source_type": sourceType, "product_id": sceneID}).
		ToSql()
	if err != nil {
		return domain.SceneRecord{}, &domain.StoreError{Op: "build find", Err: err}
	}

	rec, scanErr := scanScene(s.db.QueryRowContext(ctx, query, args...))
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return domain.SceneRecord{}, domain.ErrNotFound
		}
		return domain.SceneRecord{}, scanErr
	}
	return rec, nil
}

// Search returns records matching the filter ordered newest capture first;
// the product ID breaks capture-date ties so the order is deterministic.
func (s *PostgresStore) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.SceneRecord, error) {
	q := s.builder.
		Select(sceneColumns).
		From("scenes").
		Where(sq.Eq{"source_type": filter.SourceType}).
		OrderBy("capture_date DESC", "product_id")

	if filter.BBox != nil {
		b := *filter.BBox
		q = q.Where("ST_Intersects(aoi, ST_MakeEnvelope(?, ?, ?, ?, ?))",
			b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat(), sridWGS84)
	}
	if filter.Start != nil {
		q = q.Where(sq.GtOrEq{"capture_date": *filter.Start})
	}
	if filter.End != nil {
		q = q.Where(sq.LtOrEq{"capture_date": *filter.End})
	}
	if filter.MaxCloudCover != nil {
		q = q.Where(sq.LtOrEq{"cloud_cover": *filter.MaxCloudCover})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q = q.Limit(uint64(limit))

	query, args, err := q.ToSql()
	if err != nil {
		return nil, &domain.StoreError{Op: "build search", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: "search", Err: err}
	}
	defer rows.Close()

	var records []domain.SceneRecord
	for rows.Next() {
		rec, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "iterate search", Err: err}
	}

	return records, nil
}

// Ping verifies the pool still reaches the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.StoreError{Op: "ping", Err: err}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(row rowScanner) (domain.SceneRecord, error) {
	var (
		rec       domain.SceneRecord
		footprint orb.Polygon
		offNadir  sql.NullFloat64
		state     string
	)

	err := row.Scan(
		&rec.SceneID, &rec.SourceType, &rec.CaptureDate, &rec.CloudCover,
		&rec.SourceBaseURL, ewkb.Scanner(&footprint), &offNadir, &state,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SceneRecord{}, err
		}
		return domain.SceneRecord{}, &domain.StoreError{Op: "scan scene", Err: err}
	}

	rec.Footprint = footprint
	rec.Completeness = domain.Completeness(state)
	if offNadir.Valid {
		rec.OffNadirAngle = &offNadir.Float64
	}

	return rec, nil
}
