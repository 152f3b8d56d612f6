// Package registry declares, per source API, the set of endpoints the
// harvester knows how to call: path, pagination shape, temporal
// filtering, structural validation, and deduplication. It replaces the
// Python pipeline's per-API dataclass configuration with static,
// strictly-typed Go values plus an optional YAML overlay for
// environment-specific tuning (page sizes, lookback windows).
package registry

import (
	"time"
)

// EndpointFamily distinguishes the two harvest shapes the pipeline
// supports: repeatedly-paginated JSON, and a single-shot WFS/GML fetch.
type EndpointFamily string

const (
	// FamilyJSONPaginated endpoints are fetched page by page until a
	// short page signals the end, per hub'eau's pagination convention.
	FamilyJSONPaginated EndpointFamily = "json_paginated"
	// FamilyWFSGML endpoints return one GML FeatureCollection document
	// with no pagination.
	FamilyWFSGML EndpointFamily = "wfs_gml"
)

// DedupRule describes how to collapse a page to at most one record per
// (group key..., day) when TruncateToDay, or per (group key..., instant)
// otherwise.
type DedupRule struct {
	DateField     string
	GroupKeys     []string
	TruncateToDay bool
}

// EndpointSpec is one named, callable endpoint within an API.
type EndpointSpec struct {
	Name   string
	Path   string
	Family EndpointFamily
	Params map[string]string

	ApplyTemporalFilter bool
	TemporalStartParam  string
	TemporalEndParam    string
	LookbackDays        int
	TemporalFormat      string

	PageSize int

	// RequiredFields are checked against the first record of every page;
	// a missing field fails structural validation for the whole page.
	RequiredFields []string

	Dedup *DedupRule
}

// EndpointDescriptor is one source API: its base URL, shared call
// parameters, retry/backoff envelope, and the endpoints it exposes.
type EndpointDescriptor struct {
	API                 string
	BaseURL             string
	BaseParams          map[string]string
	MaxRetries          int
	BackoffFactor       float64
	Timeout             time.Duration
	RateLimitDelay      time.Duration
	DefaultLookbackDays int
	Endpoints           map[string]EndpointSpec
}

// Lookup returns the named endpoint, and whether it exists.
func (d EndpointDescriptor) Lookup(name string) (EndpointSpec, bool) {
	spec, ok := d.Endpoints[name]
	return spec, ok
}

const sizeParam = "size"

// Hubeau returns the descriptors for the hub'eau APIs this pipeline
// harvests: groundwater levels (piezo), surface flow (hydro), water
// quality for groundwater and surface water, river temperature, and
// withdrawal metering (prelevements). Endpoint paths and required
// fields are taken verbatim from the source pipeline's per-API mapping.
func Hubeau() map[string]*EndpointDescriptor {
	return map[string]*EndpointDescriptor{
		"piezo": {
			API:                 "piezo",
			BaseURL:             "https://hubeau.eaufrance.fr/api/v1/niveaux_nappes",
			BaseParams:          map[string]string{sizeParam: "200"},
			MaxRetries:          3,
			BackoffFactor:       2.0,
			Timeout:             60 * time.Second,
			RateLimitDelay:      500 * time.Millisecond,
			DefaultLookbackDays: 365,
			Endpoints: map[string]EndpointSpec{
				"stations": {
					Name: "stations", Path: "stations", Family: FamilyJSONPaginated,
					RequiredFields: []string{"code_bss"},
				},
				"chroniques": {
					Name: "chroniques", Path: "chroniques", Family: FamilyJSONPaginated,
					ApplyTemporalFilter: true,
					TemporalStartParam:  "date_debut_mesure",
					TemporalEndParam:    "date_fin_mesure",
					TemporalFormat:      "2006-01-02",
					LookbackDays:        365,
					RequiredFields:      []string{"code_bss", "date_mesure"},
					Dedup: &DedupRule{
						DateField: "date_mesure", GroupKeys: []string{"code_bss"}, TruncateToDay: true,
					},
				},
				"chroniques_tr": {
					Name: "chroniques_tr", Path: "chroniques_tr", Family: FamilyJSONPaginated,
					ApplyTemporalFilter: true,
					TemporalStartParam:  "date_debut_mesure",
					TemporalEndParam:    "date_fin_mesure",
					TemporalFormat:      "2006-01-02",
					LookbackDays:        7,
					RequiredFields:      []string{"code_bss", "date_mesure"},
					Dedup: &DedupRule{
						DateField: "date_mesure", GroupKeys: []string{"code_bss"}, TruncateToDay: true,
					},
				},
			},
		},
		"hydro": {
			API:                 "hydro",
			BaseURL:             "https://hubeau.eaufrance.fr/api/v2/hydrometrie",
			BaseParams:          map[string]string{sizeParam: "200"},
			MaxRetries:          3,
			BackoffFactor:       2.0,
			Timeout:             60 * time.Second,
			RateLimitDelay:      500 * time.Millisecond,
			DefaultLookbackDays: 365,
			Endpoints: map[string]EndpointSpec{
				"stations": {
					Name: "stations", Path: "referentiel/stations", Family: FamilyJSONPaginated,
					RequiredFields: []string{"code_station"},
				},
				"observations": {
					Name: "observations", Path: "observations_tr", Family: FamilyJSONPaginated,
					ApplyTemporalFilter: true,
					TemporalStartParam:  "date_debut_obs",
					TemporalEndParam:    "date_fin_obs",
					TemporalFormat:      "2006-01-02",
					LookbackDays:        7,
					RequiredFields:      []string{"code_station", "date_obs"},
					Dedup: &DedupRule{
						DateField: "date_obs", GroupKeys: []string{"code_station"}, TruncateToDay: true,
					},
				},
			},
		},
		"quality_groundwater": {
			API:                 "quality_groundwater",
			BaseURL:             "https://hubeau.eaufrance.fr/api/v1/qualite_nappes",
			BaseParams:          map[string]string{sizeParam: "200"},
			MaxRetries:          3,
			BackoffFactor:       2.0,
			Timeout:             60 * time.Second,
			RateLimitDelay:      500 * time.Millisecond,
			DefaultLookbackDays: 365,
			Endpoints: map[string]EndpointSpec{
				"analyses": {
					Name: "analyses", Path: "analyses", Family: FamilyJSONPaginated,
					ApplyTemporalFilter: true,
					TemporalStartParam:  "date_debut_prelevement",
					TemporalEndParam:    "date_fin_prelevement",
					TemporalFormat:      "2006-01-02",
					LookbackDays:        365,
					RequiredFields:      []string{"code_bss", "date_debut_prelevement"},
					Dedup: &DedupRule{
						DateField: "date_debut_prelevement", GroupKeys: []string{"code_bss"}, TruncateToDay: true,
					},
				},
			},
		},
		"quality_surface": {
			API:                 "quality_surface",
			BaseURL:             "https://hubeau.eaufrance.fr/api/v2/qualite_rivieres",
			BaseParams:          map[string]string{sizeParam: "200"},
			MaxRetries:          3,
			BackoffFactor:       2.0,
			Timeout:             60 * time.Second,
			RateLimitDelay:      500 * time.Millisecond,
			DefaultLookbackDays: 365,
			Endpoints: map[string]EndpointSpec{
				"station_pc": {
					Name: "station_pc", Path: "station_pc", Family: FamilyJSONPaginated,
					RequiredFields: []string{"code_station"},
				},
				"analyse_pc": {
					Name: "analyse_pc", Path: "analyse_pc", Family: FamilyJSONPaginated,
					ApplyTemporalFilter: true,
					TemporalStartParam:  "date_debut_prelevement",
					TemporalEndParam:    "date_fin_prelevement",
					TemporalFormat:      "2006-01-02",
					LookbackDays:        365,
					RequiredFields:      []string{"code_station", "date_prelevement"},
					Dedup: &DedupRule{
						DateField: "date_prelevement", GroupKeys: []string{"code_station"}, TruncateToDay: true,
					},
				},
			},
		},
		"temperature": {
			API:                 "temperature",
			BaseURL:             "https://hubeau.eaufrance.fr/api/v1/temperature",
			BaseParams:          map[string]string{sizeParam: "200"},
			MaxRetries:          3,
			BackoffFactor:       2.0,
			Timeout:             60 * time.Second,
			RateLimitDelay:      500 * time.Millisecond,
			DefaultLookbackDays: 365,
			Endpoints: map[string]EndpointSpec{
				"station": {
					Name: "station", Path: "station", Family: FamilyJSONPaginated,
					RequiredFields: []string{"code_station"},
				},
				"chronique": {
					Name: "chronique", Path: "chronique", Family: FamilyJSONPaginated,
					ApplyTemporalFilter: true,
					TemporalStartParam:  "date_debut_mesure",
					TemporalEndParam:    "date_fin_mesure",
					TemporalFormat:      "2006-01-02",
					LookbackDays:        7,
					RequiredFields:      []string{"code_station", "date_mesure_temp"},
					Dedup: &DedupRule{
						DateField: "date_mesure_temp", GroupKeys: []string{"code_station"}, TruncateToDay: true,
					},
				},
			},
		},
		"prelevements": {
			API:                 "prelevements",
			BaseURL:             "https://hubeau.eaufrance.fr/api/v1/prelevements",
			BaseParams:          map[string]string{sizeParam: "200"},
			MaxRetries:          3,
			BackoffFactor:       2.0,
			Timeout:             60 * time.Second,
			RateLimitDelay:      500 * time.Millisecond,
			DefaultLookbackDays: 365,
			Endpoints: map[string]EndpointSpec{
				"chroniques": {
					Name: "chroniques", Path: "chroniques", Family: FamilyJSONPaginated,
					ApplyTemporalFilter: true,
					TemporalStartParam:  "date_debut",
					TemporalEndParam:    "date_fin",
					TemporalFormat:      "2006-01-02",
					LookbackDays:        365,
					RequiredFields:      []string{"code_ouvrage", "date_debut_prelevement"},
					// Sub-daily withdrawal readings: truncate_to_day=false is
					// legitimate here, unlike every other endpoint above.
					Dedup: &DedupRule{
						DateField: "date_debut_prelevement", GroupKeys: []string{"code_ouvrage"}, TruncateToDay: false,
					},
				},
			},
		},
	}
}

// Sandre returns the SANDRE référentiel descriptor, used to resolve
// parameter code (code_param) labels, units, and families.
func Sandre() map[string]*EndpointDescriptor {
	return map[string]*EndpointDescriptor{
		"sandre": {
			API:                 "sandre",
			BaseURL:             "https://api.sandre.eaufrance.fr/referentiels/v1",
			BaseParams:          map[string]string{sizeParam: "200"},
			MaxRetries:          3,
			BackoffFactor:       2.0,
			Timeout:             60 * time.Second,
			RateLimitDelay:      500 * time.Millisecond,
			DefaultLookbackDays: 0,
			Endpoints: map[string]EndpointSpec{
				"parametres": {
					Name: "parametres", Path: "parametres.json", Family: FamilyJSONPaginated,
					RequiredFields: []string{"CdParametre", "NomParametre"},
				},
			},
		},
	}
}

// Meteo returns the météo-grid descriptor: a single-shot WFS/GML feature
// collection describing the grid cells used to map stations to the
// nearest meteorological observation.
func Meteo() map[string]*EndpointDescriptor {
	return map[string]*EndpointDescriptor{
		"meteo": {
			API:            "meteo",
			BaseURL:        "https://public-api.meteofrance.fr/public/DPClim/v1/wfs",
			BaseParams:     map[string]string{"service": "WFS", "version": "2.0.0", "request": "GetFeature"},
			MaxRetries:     3,
			BackoffFactor:  2.0,
			Timeout:        60 * time.Second,
			RateLimitDelay: 500 * time.Millisecond,
			Endpoints: map[string]EndpointSpec{
				"grid": {
					Name: "grid", Path: "grid", Family: FamilyWFSGML,
					Params: map[string]string{"typeName": "grille_meteo"},
				},
			},
		},
	}
}
