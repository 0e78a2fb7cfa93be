package domain

import (
	"iter"
	"time"

	"github.com/paulmach/orb"
)

// Completeness tracks whether a scene record still awaits its derived,
// expensive-to-fetch metadata fields.
type Completeness string

const (
	CompletenessPartial  Completeness = "partial"
	CompletenessComplete Completeness = "complete"
)

// SceneRecord is the persisted catalog entry for one satellite scene.
type SceneRecord struct {
	SceneID       string
	SourceType    string
	CaptureDate   time.Time
	CloudCover    float64
	Footprint     orb.Polygon
	SourceBaseURL string
	OffNadirAngle *float64
	Completeness  Completeness
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsComplete reports whether all derived fields have been populated.
func (r SceneRecord) IsComplete() bool {
	return r.Completeness == CompletenessComplete
}

// RemoteSceneListing is one row of the remote bulk listing. It is never
// persisted; it exists only to seed a new SceneRecord during reconciliation.
type RemoteSceneListing struct {
	SceneID       string
	SourceType    string
	CaptureDate   time.Time
	CloudCover    float64
	Footprint     orb.Polygon
	SourceBaseURL string
}

// Record converts the listing row into a fresh partial catalog record.
func (l RemoteSceneListing) Record() SceneRecord {
	return SceneRecord{
		SceneID:       l.SceneID,
		SourceType:    l.SourceType,
		CaptureDate:   l.CaptureDate,
		CloudCover:    l.CloudCover,
		Footprint:     l.Footprint,
		SourceBaseURL: l.SourceBaseURL,
		Completeness:  CompletenessPartial,
	}
}

// ListingSeq streams bulk-listing rows lazily. A non-nil error element marks a
// row that could not be parsed (ParseError) or whose footprint could not be
// computed (GeometryError); consumers skip such rows without aborting the pass.
type ListingSeq = iter.Seq2[RemoteSceneListing, error]

// ParsedMetadata holds fields derived from a scene's supplementary metadata
// file. Only OffNadirAngle is persisted; the sun geometry is serve-time data.
type ParsedMetadata struct {
	OffNadirAngle float64
	SunElevation  float64
	SunAzimuth    float64
}

// SceneAsset names one component file hosted under a scene's base URL.
type SceneAsset struct {
	Name string
	URL  string
}

// SearchFilter narrows a catalog search. Zero-value fields are not applied.
type SearchFilter struct {
	SourceType    string
	BBox          *orb.Bound
	Start         *time.Time
	End           *time.Time
	MaxCloudCover *float64
	Limit         int
}
