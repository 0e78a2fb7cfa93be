// Package memstore is an in-memory ports.SceneStore used by tests in place
// of the Postgres-backed store.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"SceneBroker/internal/domain"
	"SceneBroker/internal/ports"
)

// Store keeps scene records in a map guarded by one mutex. Claim leases and
// the partial→complete transition follow the same rules as the real store.
type Store struct {
	mu      sync.Mutex
	records map[string]domain.SceneRecord
	claims  map[string]time.Time

	// Now is the clock used for claim leases; tests may replace it.
	Now func() time.Time

	// PingErr, when set, makes Ping fail so passes abort before any work.
	PingErr error

	// InsertFailID, when set, fails any InsertBatch containing that scene ID
	// without mutating the store, imitating a rolled-back transaction.
	InsertFailID string

	completions map[string]int
}

var _ ports.SceneStore = (*Store)(nil)

// New builds an empty store.
func New() *Store {
	return &Store{
		records:     map[string]domain.SceneRecord{},
		claims:      map[string]time.Time{},
		Now:         time.Now,
		completions: map[string]int{},
	}
}

func key(sourceType, sceneID string) string {
	return sourceType + "/" + sceneID
}

// Put seeds one record directly, bypassing the ingest path.
func (s *Store) Put(rec domain.SceneRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key(rec.SourceType, rec.SceneID)] = rec
}

// Get returns a stored record and whether it exists.
func (s *Store) Get(sourceType, sceneID string) (domain.SceneRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key(sourceType, sceneID)]
	return rec, ok
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// CompletionCount reports how many times CompleteScene transitioned the given
// scene; anything above one is a claim-exclusivity violation.
func (s *Store) CompletionCount(sceneID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completions[sceneID]
}

// ExistingIDs implements ports.SceneStore.
func (s *Store) ExistingIDs(ctx context.Context, sourceType string, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.records[key(sourceType, id)]; ok {
			result[id] = true
		}
	}
	return result, nil
}

// InsertBatch implements ports.SceneStore. The whole batch fails atomically
// when it contains InsertFailID.
func (s *Store) InsertBatch(ctx context.Context, records []domain.SceneRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InsertFailID != "" {
		for _, rec := range records {
			if rec.SceneID == s.InsertFailID {
				return 0, &domain.StoreError{Op: "insert batch", Err: errors.New("injected failure")}
			}
		}
	}

	inserted := 0
	for _, rec := range records {
		k := key(rec.SourceType, rec.SceneID)
		if _, ok := s.records[k]; ok {
			continue
		}
		rec.Completeness = domain.CompletenessPartial
		s.records[k] = rec
		inserted++
	}
	return inserted, nil
}

// ClaimPartial implements ports.SceneStore with lease semantics.
func (s *Store) ClaimPartial(ctx context.Context, limit int, lease time.Duration) ([]domain.SceneRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()

	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var claimed []domain.SceneRecord
	for _, k := range keys {
		if len(claimed) >= limit {
			break
		}
		rec := s.records[k]
		if rec.Completeness != domain.CompletenessPartial {
			continue
		}
		if until, ok := s.claims[k]; ok && until.After(now) {
			continue
		}
		s.claims[k] = now.Add(lease)
		claimed = append(claimed, rec)
	}
	return claimed, nil
}

// CompleteScene implements ports.SceneStore; the transition is monotone.
func (s *Store) CompleteScene(ctx context.Context, sourceType, sceneID string, offNadirAngle float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(sourceType, sceneID)
	rec, ok := s.records[k]
	if !ok || rec.Completeness != domain.CompletenessPartial {
		return nil
	}

	angle := offNadirAngle
	rec.OffNadirAngle = &angle
	rec.Completeness = domain.CompletenessComplete
	s.records[k] = rec
	delete(s.claims, k)
	s.completions[sceneID]++
	return nil
}

// ReleaseClaim implements ports.SceneStore.
func (s *Store) ReleaseClaim(ctx context.Context, sourceType, sceneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(sourceType, sceneID)
	if rec, ok := s.records[k]; ok && rec.Completeness == domain.CompletenessPartial {
		delete(s.claims, k)
	}
	return nil
}

// FindBySceneID implements ports.SceneStore.
func (s *Store) FindBySceneID(ctx context.Context, sourceType, sceneID string) (domain.SceneRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key(sourceType, sceneID)]
	if !ok {
		return domain.SceneRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// Search implements ports.SceneStore with the same ordering as the real
// store: newest capture first, product ID breaking ties.
func (s *Store) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.SceneRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.SceneRecord
	for _, rec := range s.records {
		if rec.SourceType != filter.SourceType {
			continue
		}
		if filter.BBox != nil && !filter.BBox.Intersects(rec.Footprint.Bound()) {
			continue
		}
		if filter.Start != nil && rec.CaptureDate.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && rec.CaptureDate.After(*filter.End) {
			continue
		}
		if filter.MaxCloudCover != nil && rec.CloudCover > *filter.MaxCloudCover {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CaptureDate.Equal(matched[j].CaptureDate) {
			return matched[i].CaptureDate.After(matched[j].CaptureDate)
		}
		return matched[i].SceneID < matched[j].SceneID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Ping implements ports.SceneStore.
func (s *Store) Ping(ctx context.Context) error {
	return s.PingErr
}
