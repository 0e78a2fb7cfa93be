// Package tiles maps indexed scene IDs onto externally hosted preview images.
package tiles

import (
	"context"
	"strings"

	"SceneBroker/internal/ports"
)

const previewSuffix = "_thumb_large.jpg"

// Resolver answers tile requests with a redirect to the scene's one large
// preview image. It never inspects the tile coordinates: the resolver exists
// to satisfy an external tile consumer's URL contract, not to serve tiles.
type Resolver struct {
	store ports.SceneStore
}

// NewResolver wires the catalog store.
func NewResolver(store ports.SceneStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the redirect target for the scene, ignoring z/x/y, or
// domain.ErrNotFound when the scene is not indexed.
func (r *Resolver) Resolve(ctx context.Context, sourceType, sceneID string, z, x, y int) (string, error) {
	rec, err := r.store.FindBySceneID(ctx, sourceType, sceneID)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(rec.SourceBaseURL, "/") + "/" + rec.SceneID + previewSuffix, nil
}
