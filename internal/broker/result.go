// Package broker builds the uniform geospatial output representation served
// to clients: a base result carrying the facts every source provides, plus
// optional source-specific extensions, converted deterministically to GeoJSON.
package broker

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Extension is an optional fact set attachable to a Result. Implementations
// write a fixed set of property keys that is disjoint from the base keys and
// from every other extension's keys; the disjointness is a naming convention,
// and violating it is a defect.
type Extension interface {
	// Name identifies the extension in logs.
	Name() string
	// Apply writes the extension's fields into the feature property map.
	Apply(props geojson.Properties)
}

// Result is one searchable unit: the universally required fact set plus any
// attached extensions. It is immutable after construction except for Attach,
// which callers finish before serialization.
type Result struct {
	ID               string
	Geometry         orb.Geometry
	CloudCover       float64
	ResolutionMeters float64
	AcquisitionDate  time.Time
	SensorName       string
	FileFormat       string
	OffNadirAngle    *float64

	extensions []Extension
}

// Attach adds an extension fact set. Attaching nil is a no-op, never an
// error, so callers can pass through optional data unconditionally.
func (r *Result) Attach(ext Extension) {
	if ext == nil {
		return
	}
	r.extensions = append(r.extensions, ext)
}

// ToFeature serializes the composed result. The bounding box is always
// computed from the geometry, never trusted from a caller. Extensions write
// disjoint keys, so applying them in any order yields the same feature, and
// JSON map-key ordering makes repeated serializations byte-identical.
func (r *Result) ToFeature() *geojson.Feature {
	feature := geojson.NewFeature(r.Geometry)
	feature.ID = r.ID
	feature.BBox = geojson.NewBBox(r.Geometry.Bound())

	props := feature.Properties
	props["sceneId"] = r.ID
	props["cloudCover"] = r.CloudCover
	props["resolution"] = r.ResolutionMeters
	props["acquisitionDate"] = r.AcquisitionDate.UTC().Format(time.RFC3339)
	props["sensorName"] = r.SensorName
	props["fileFormat"] = r.FileFormat
	if r.OffNadirAngle != nil {
		props["offNadirAngle"] = *r.OffNadirAngle
	}

	for _, ext := range r.extensions {
		if ext != nil {
			ext.Apply(props)
		}
	}

	return feature
}

// MultiResult wraps an ordered sequence of results. Insertion order is
// preserved and is the only defined order.
type MultiResult struct {
	results []*Result
}

// NewMultiResult builds a collection from the given results, keeping order.
func NewMultiResult(results ...*Result) *MultiResult {
	return &MultiResult{results: results}
}

// Append adds one result at the end of the collection.
func (m *MultiResult) Append(r *Result) {
	m.results = append(m.results, r)
}

// Len reports the number of collected results.
func (m *MultiResult) Len() int {
	return len(m.results)
}

// ToFeatureCollection concatenates each member's feature in insertion order.
func (m *MultiResult) ToFeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range m.results {
		fc.Append(r.ToFeature())
	}
	return fc
}
