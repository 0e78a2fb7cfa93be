package broker

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

func testPolygon() orb.Polygon {
	return orb.Polygon{orb.Ring{
		{87.76, 24.28}, {90.13, 24.28}, {90.13, 26.42}, {87.76, 26.42}, {87.76, 24.28},
	}}
}

func baseResult() *Result {
	return &Result{
		ID:               "LC08_X",
		Geometry:         testPolygon(),
		CloudCover:       0.225,
		ResolutionMeters: 30,
		AcquisitionDate:  time.Date(2017, time.April, 11, 5, 36, 29, 0, time.UTC),
		SensorName:       "OLI_TIRS",
		FileFormat:       "GeoTIFF",
	}
}

func TestToFeatureDeterministic(t *testing.T) {
	t.Parallel()

	result := baseResult()
	result.Attach(TidalExtension{CurrentTide: 1.1, MaximumTide24Hours: 2.2, MinimumTide24Hours: 0.3})
	result.Attach(ActivationExtension{ActivationID: "act-1", AssetName: "asset-9", Provider: "prov"})

	first, err := json.Marshal(result.ToFeature())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(result.ToFeature())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatal("repeated conversion must be byte-identical")
	}
}

func TestExtensionOrderIndependence(t *testing.T) {
	t.Parallel()

	tidal := TidalExtension{CurrentTide: 1.1, MaximumTide24Hours: 2.2, MinimumTide24Hours: 0.3}
	activation := ActivationExtension{ActivationID: "act-1", AssetName: "asset-9", Provider: "prov"}

	forward := baseResult()
	forward.Attach(tidal)
	forward.Attach(activation)

	reversed := baseResult()
	reversed.Attach(activation)
	reversed.Attach(tidal)

	a, err := json.Marshal(forward.ToFeature())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(reversed.ToFeature())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if !bytes.Equal(a, b) {
		t.Fatal("extension application order must not change the output")
	}
}

func TestTidalExtensionComposition(t *testing.T) {
	t.Parallel()

	result := baseResult()
	result.Attach(TidalExtension{CurrentTide: 1.1, MaximumTide24Hours: 2.2, MinimumTide24Hours: 0.3})

	props := result.ToFeature().Properties

	for _, key := range []string{
		"sceneId", "cloudCover", "resolution", "acquisitionDate", "sensorName", "fileFormat",
		"currentTide", "maximumTide24Hours", "minimumTide24Hours",
	} {
		if _, ok := props[key]; !ok {
			t.Fatalf("missing property %q", key)
		}
	}

	if props["cloudCover"] != 0.225 {
		t.Fatalf("base key overwritten: %v", props["cloudCover"])
	}
	if props["currentTide"] != 1.1 {
		t.Fatalf("tidal key wrong: %v", props["currentTide"])
	}
}

func TestAttachNilIsNoOp(t *testing.T) {
	t.Parallel()

	withNil := baseResult()
	withNil.Attach(nil)

	plain := baseResult()

	a, _ := json.Marshal(withNil.ToFeature())
	b, _ := json.Marshal(plain.ToFeature())
	if !bytes.Equal(a, b) {
		t.Fatal("attaching nil must not change the output")
	}
}

func TestBBoxComputedFromGeometry(t *testing.T) {
	t.Parallel()

	feature := baseResult().ToFeature()
	if len(feature.BBox) != 4 {
		t.Fatalf("expected 4-element bbox, got %v", feature.BBox)
	}

	want := [4]float64{87.76, 24.28, 90.13, 26.42}
	for i, v := range want {
		if feature.BBox[i] != v {
			t.Fatalf("bbox[%d] = %f, want %f", i, feature.BBox[i], v)
		}
	}
}

func TestOffNadirOnlyWhenPresent(t *testing.T) {
	t.Parallel()

	partial := baseResult()
	if _, ok := partial.ToFeature().Properties["offNadirAngle"]; ok {
		t.Fatal("partial result must not expose an off-nadir angle")
	}

	angle := 0.75
	complete := baseResult()
	complete.OffNadirAngle = &angle
	if got := complete.ToFeature().Properties["offNadirAngle"]; got != 0.75 {
		t.Fatalf("unexpected off-nadir property: %v", got)
	}
}

func TestMultiResultPreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	first := baseResult()
	second := baseResult()
	second.ID = "LC08_Y"
	third := baseResult()
	third.ID = "LC08_A" // sorts before the others, must still come last

	multi := NewMultiResult(first, second)
	multi.Append(third)

	fc := multi.ToFeatureCollection()
	if len(fc.Features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(fc.Features))
	}

	wantOrder := []string{"LC08_X", "LC08_Y", "LC08_A"}
	for i, want := range wantOrder {
		if fc.Features[i].ID != want {
			t.Fatalf("feature %d = %v, want %s", i, fc.Features[i].ID, want)
		}
	}
}

func TestBandID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want string
		ok   bool
	}{
		{"LC08_X_B1.TIF", "B1", true},
		{"LC08_X_B11.TIF", "B11", true},
		{"LC08_X_BQA.TIF", "", false},
		{"LC08_X_MTL.txt", "", false},
		{"LC08_X_thumb_large.jpg", "", false},
	}

	for _, tc := range cases {
		got, ok := bandID(tc.name)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("bandID(%q) = (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}
