package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"SceneBroker/internal/broker"
	"SceneBroker/internal/domain"
	"SceneBroker/internal/infrastructure/storage/memstore"
	"SceneBroker/internal/tiles"
	"SceneBroker/internal/usecase"
)

type fakeTrigger struct {
	err   error
	calls int
}

func (f *fakeTrigger) RunOnce(ctx context.Context) error {
	f.calls++
	return f.err
}

func testServer(store *memstore.Store, trigger IngestTrigger) *Server {
	profile := broker.SourceProfile{SensorName: "OLI_TIRS", ResolutionMeters: 30, FileFormat: "GeoTIFF"}
	return NewServer(
		broker.NewService(store, nil, profile, nil),
		tiles.NewResolver(store),
		trigger,
		nil,
	)
}

func seedScene(store *memstore.Store, id string, day int) {
	store.Put(domain.SceneRecord{
		SceneID:       id,
		SourceType:    "landsat",
		CaptureDate:   time.Date(2017, time.April, day, 0, 0, 0, 0, time.UTC),
		CloudCover:    0.2,
		Footprint:     orb.Polygon{orb.Ring{{87, 24}, {90, 24}, {90, 26}, {87, 26}, {87, 24}}},
		SourceBaseURL: "https://host/path/" + id,
		Completeness:  domain.CompletenessPartial,
	})
}

func do(t *testing.T, server *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	seedScene(store, "LC08_A", 11)
	seedScene(store, "LC08_B", 13)

	server := testServer(store, nil)

	rec := do(t, server, http.MethodGet, "/api/landsat/search?bbox=80,20,95,30&maxCloud=0.5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %s", ct)
	}

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fc); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Fatalf("type = %s", fc.Type)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
}

func TestSearchEndpointRejectsBadParams(t *testing.T) {
	t.Parallel()

	server := testServer(memstore.New(), nil)

	for _, target := range []string{
		"/api/landsat/search?bbox=1,2,3",
		"/api/landsat/search?bbox=a,b,c,d",
		"/api/landsat/search?start=yesterday",
		"/api/landsat/search?maxCloud=1.5",
		"/api/landsat/search?limit=0",
	} {
		rec := do(t, server, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSceneEndpoint(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	seedScene(store, "LC08_A", 11)

	server := testServer(store, nil)

	rec := do(t, server, http.MethodGet, "/api/landsat/scenes/LC08_A")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var feature struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &feature); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if feature.ID != "LC08_A" {
		t.Fatalf("id = %s", feature.ID)
	}
	if feature.Properties["sensorName"] != "OLI_TIRS" {
		t.Fatalf("sensorName = %v", feature.Properties["sensorName"])
	}

	rec = do(t, server, http.MethodGet, "/api/landsat/scenes/UNKNOWN")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown scene status = %d, want 404", rec.Code)
	}
}

func TestTileEndpointRedirects(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	seedScene(store, "LC08_X", 11)

	server := testServer(store, nil)

	rec := do(t, server, http.MethodGet, "/tiles/landsat/LC08_X/8/190/105.jpg")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://host/path/LC08_X/LC08_X_thumb_large.jpg" {
		t.Fatalf("location = %s", loc)
	}

	rec = do(t, server, http.MethodGet, "/tiles/landsat/UNKNOWN/8/190/105.jpg")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown scene status = %d, want 404", rec.Code)
	}
}

func TestTileEndpointRejectsNonNumericCoordinates(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	seedScene(store, "LC08_X", 11)

	server := testServer(store, nil)

	rec := do(t, server, http.MethodGet, "/tiles/landsat/LC08_X/a/b/c.jpg")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("non-numeric coordinates status = %d, want 404", rec.Code)
	}
}

func TestIngestEndpoint(t *testing.T) {
	t.Parallel()

	trigger := &fakeTrigger{}
	server := testServer(memstore.New(), trigger)

	rec := do(t, server, http.MethodPost, "/ops/ingest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if trigger.calls != 1 {
		t.Fatalf("trigger called %d times", trigger.calls)
	}

	trigger.err = usecase.ErrPassInFlight
	rec = do(t, server, http.MethodPost, "/ops/ingest")
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping trigger status = %d, want 409", rec.Code)
	}
}

func TestIngestEndpointDisabled(t *testing.T) {
	t.Parallel()

	server := testServer(memstore.New(), nil)

	rec := do(t, server, http.MethodPost, "/ops/ingest")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
