package broker

import "github.com/paulmach/orb/geojson"

// TidalExtension carries tide levels at the scene location around the
// acquisition time, for sources with coastal coverage.
type TidalExtension struct {
	CurrentTide        float64
	MaximumTide24Hours float64
	MinimumTide24Hours float64
}

// Name identifies the extension.
func (e TidalExtension) Name() string { return "tidal" }

// Apply writes the tidal keys.
func (e TidalExtension) Apply(props geojson.Properties) {
	props["currentTide"] = e.CurrentTide
	props["maximumTide24Hours"] = e.MaximumTide24Hours
	props["minimumTide24Hours"] = e.MinimumTide24Hours
}

// ActivationExtension carries tasking/activation metadata for sources whose
// scenes are produced on demand.
type ActivationExtension struct {
	ActivationID string
	AssetName    string
	Provider     string
}

// Name identifies the extension.
func (e ActivationExtension) Name() string { return "activation" }

// Apply writes the activation keys.
func (e ActivationExtension) Apply(props geojson.Properties) {
	props["activationId"] = e.ActivationID
	props["assetName"] = e.AssetName
	props["assetProvider"] = e.Provider
}

// BandLocationExtension maps spectral band identifiers to the URLs of the
// files that hold them, discovered from the scene's asset index.
type BandLocationExtension struct {
	Bands map[string]string
}

// Name identifies the extension.
func (e BandLocationExtension) Name() string { return "bandLocations" }

// Apply writes the band-location map under a single key.
func (e BandLocationExtension) Apply(props geojson.Properties) {
	props["bandLocations"] = e.Bands
}
