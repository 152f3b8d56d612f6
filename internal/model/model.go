// Package model holds the domain types shared by the bronze, silver, and
// gold stages: the raw harvest page, the silver row shapes, and the gold
// node/relation vocabulary.
package model

import (
	"time"

	"github.com/paulmach/orb"
)

// Page is one raw response from a source API, already paginated and
// validated but not yet interpreted — the unit Bronze stores and Silver
// reads back.
type Page struct {
	API          string
	Endpoint     string
	PartitionKey string
	FetchedAt    time.Time
	Records      []map[string]any
	Raw          []byte // present for GML/XML pages that bypass JSON decode
	ContentType  string
}

// Measurement is one silver time-series row: a single observation of
// theme at station_code, at timestamp, produced by source.
type Measurement struct {
	StationCode string
	Theme       string
	Timestamp   time.Time
	Value       *float64
	Quality     *string
	Source      string
}

// Key returns the measurement's primary key tuple.
func (m Measurement) Key() (string, string, time.Time) {
	return m.StationCode, m.Theme, m.Timestamp
}

// Station is silver station metadata, keyed by StationCode.
type Station struct {
	StationCode  string
	Label        string
	Type         string
	INSEE        string
	MasseEauCode string
	Geom         orb.Point // WGS84 lon/lat
}

// Parameter is silver parameter/theme metadata, keyed by CodeParam.
type Parameter struct {
	CodeParam string
	Label     string
	Unit      string
	Family    string
}

// MeteoGridCell is one silver météo grid cell row.
type MeteoGridCell struct {
	GridID string
	Geom   orb.Point
}

// StationGridCell maps a station to its nearest météo grid cell.
type StationGridCell struct {
	StationCode string
	GridID      string
	DistanceKM  float64
}

// Gold node labels.
const (
	LabelStation    = "Station"
	LabelCommune    = "Commune"
	LabelMasseEau   = "MasseEau"
	LabelParametre  = "Parametre"
	LabelReseau     = "Reseau"
	LabelMeteoGrid  = "MeteoGrid"
)

// Gold relationship types.
const (
	RelLocatedIn      = "LOCATED_IN"
	RelInMasse        = "IN_MASSE"
	RelHasParam       = "HAS_PARAM"
	RelNear           = "NEAR"
	RelCorrelated     = "CORRELATED"
	RelCorrelatedWith = "CORRELATED_WITH"
)
