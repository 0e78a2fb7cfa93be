package broker

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"SceneBroker/internal/domain"
	"SceneBroker/internal/ports"
)

// SourceProfile holds the static facts shared by every scene of one source.
type SourceProfile struct {
	SensorName       string
	ResolutionMeters float64
	FileFormat       string
}

// Service is the read-only surface the API layer consumes: catalog search and
// metadata-by-ID rendered through the result model.
type Service struct {
	store   ports.SceneStore
	assets  ports.AssetSource
	profile SourceProfile
	logger  *slog.Logger
}

// NewService wires the store and an optional asset source. A nil asset source
// disables the band-location extension.
func NewService(store ports.SceneStore, assets ports.AssetSource, profile SourceProfile, logger *slog.Logger) *Service {
	return &Service{store: store, assets: assets, profile: profile, logger: logger}
}

// Search returns the matching scenes as an ordered collection. The store
// defines the order; the collection never re-sorts.
func (s *Service) Search(ctx context.Context, filter domain.SearchFilter) (*MultiResult, error) {
	records, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search scenes: %w", err)
	}

	multi := NewMultiResult()
	for _, rec := range records {
		multi.Append(s.fromRecord(rec))
	}
	return multi, nil
}

// MetadataByID returns one scene, decorated with band locations when the
// asset index is reachable. Asset discovery is best effort: its failure is
// logged, never surfaced, since the base result is already complete.
func (s *Service) MetadataByID(ctx context.Context, sourceType, sceneID string) (*Result, error) {
	rec, err := s.store.FindBySceneID(ctx, sourceType, sceneID)
	if err != nil {
		return nil, err
	}

	result := s.fromRecord(rec)

	if s.assets != nil {
		assets, err := s.assets.FetchAssets(ctx, rec.SourceBaseURL)
		if err != nil {
			s.warn("asset discovery failed", "scene_id", sceneID, "error", err)
		} else if bands := bandLocations(assets); len(bands) > 0 {
			result.Attach(BandLocationExtension{Bands: bands})
		}
	}

	return result, nil
}

func (s *Service) fromRecord(rec domain.SceneRecord) *Result {
	return &Result{
		ID:               rec.SceneID,
		Geometry:         rec.Footprint,
		CloudCover:       rec.CloudCover,
		ResolutionMeters: s.profile.ResolutionMeters,
		AcquisitionDate:  rec.CaptureDate,
		SensorName:       s.profile.SensorName,
		FileFormat:       s.profile.FileFormat,
		OffNadirAngle:    rec.OffNadirAngle,
	}
}

// bandLocations extracts spectral band files (e.g. ..._B4.TIF) from the
// discovered assets, keyed by band identifier.
func bandLocations(assets []domain.SceneAsset) map[string]string {
	bands := make(map[string]string)
	for _, asset := range assets {
		band, ok := bandID(asset.Name)
		if !ok {
			continue
		}
		bands[band] = asset.URL
	}
	return bands
}

func bandID(name string) (string, bool) {
	ext := path.Ext(name)
	if !strings.EqualFold(ext, ".tif") {
		return "", false
	}

	stem := strings.TrimSuffix(name, ext)
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return "", false
	}

	token := stem[idx+1:]
	if len(token) < 2 || token[0] != 'B' {
		return "", false
	}
	for _, c := range token[1:] {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return token, true
}

func (s *Service) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
