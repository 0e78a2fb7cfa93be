package ports

import (
	"context"
	"time"

	"SceneBroker/internal/domain"
)

// ListingSource retrieves the remote bulk listing of available scenes.
// A failed fetch returns a FetchError and aborts the whole reconciliation
// pass; per-row problems travel inside the sequence instead.
type ListingSource interface {
	FetchListing(ctx context.Context) (domain.ListingSeq, error)
}

// MetadataSource fetches and parses one scene's supplementary metadata file.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, baseURL, sceneID string) (domain.ParsedMetadata, error)
}

// AssetSource discovers the component files hosted under a scene's base URL.
type AssetSource interface {
	FetchAssets(ctx context.Context, baseURL string) ([]domain.SceneAsset, error)
}

// SceneStore owns SceneRecord persistence. The ingest engines are its only
// writers; the serving path only reads.
type SceneStore interface {
	// ExistingIDs reports which of the given scene IDs are already persisted.
	ExistingIDs(ctx context.Context, sourceType string, ids []string) (map[string]bool, error)

	// InsertBatch inserts the given records as one transaction, skipping any
	// sceneID that is already present. Existing rows are never overwritten.
	// Returns the number of rows actually inserted.
	InsertBatch(ctx context.Context, records []domain.SceneRecord) (int, error)

	// ClaimPartial atomically selects up to limit partial, unclaimed records
	// and marks each with an exclusive lease. Two overlapping completion
	// passes never receive the same record.
	ClaimPartial(ctx context.Context, limit int, lease time.Duration) ([]domain.SceneRecord, error)

	// CompleteScene fills the derived fields of one claimed record and flips
	// it to complete. The transition is monotone: a complete record is left
	// untouched.
	CompleteScene(ctx context.Context, sourceType, sceneID string, offNadirAngle float64) error

	// ReleaseClaim returns a still-partial record to the claimable pool after
	// a failed completion attempt.
	ReleaseClaim(ctx context.Context, sourceType, sceneID string) error

	// FindBySceneID returns domain.ErrNotFound when the scene is absent.
	FindBySceneID(ctx context.Context, sourceType, sceneID string) (domain.SceneRecord, error)

	// Search returns records matching the filter, newest capture first.
	Search(ctx context.Context, filter domain.SearchFilter) ([]domain.SceneRecord, error)

	// Ping verifies store connectivity before a pass starts any work.
	Ping(ctx context.Context) error
}

// AlertNotifier surfaces pass-level ingest failures to operators.
type AlertNotifier interface {
	PassFailed(ctx context.Context, phase string, err error) error
}

// Scheduler controls when ingest phases execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
