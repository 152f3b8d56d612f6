// Package gold synchronizes the Silver warehouse into the property
// graph: station/parameter reference nodes and the relations derived
// from co-location, shared parameters, spatial proximity, and
// statistical correlation.
package gold

import (
	"context"
	"fmt"
	"time"

	"hydropipe/internal/model"
	"hydropipe/pkg/apperror"
	"hydropipe/pkg/database"
	"hydropipe/pkg/graphstore"
)

const (
	defaultNearRadiusKM           = 50.0
	defaultCorrelationWindow      = 90 * 24 * time.Hour
	defaultCorrelationThreshold   = 0.7
	defaultMinCoMeasuredStations  = 3
	defaultMinCorrelationSamples  = 10
)

// GraphWriter is the subset of graphstore.Client the synchronizer needs.
type GraphWriter interface {
	MergeNode(ctx context.Context, n graphstore.Node) error
	MergeRelation(ctx context.Context, r graphstore.Relation) error
}

// Result tallies what one Sync pass wrote.
type Result struct {
	StationNodes        int
	CommuneNodes        int
	MasseEauNodes       int
	ParametreNodes      int
	LocatedInRelations  int
	InMasseRelations    int
	HasParamRelations   int
	NearRelations       int
	CorrelatedRelations int
	CorrelatedWithRelations int
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithNearRadiusKM overrides the NEAR distance cutoff.
func WithNearRadiusKM(km float64) Option {
	return func(s *Synchronizer) { s.nearRadiusKM = km }
}

// WithCorrelationWindow overrides the CORRELATED lookback window.
func WithCorrelationWindow(d time.Duration) Option {
	return func(s *Synchronizer) { s.correlationWindow = d }
}

// WithCorrelationThreshold overrides the minimum |rho| for CORRELATED.
func WithCorrelationThreshold(threshold float64) Option {
	return func(s *Synchronizer) { s.correlationThreshold = threshold }
}

// Synchronizer projects Silver rows into Gold graph nodes and relations.
type Synchronizer struct {
	db    database.DB
	graph GraphWriter

	nearRadiusKM         float64
	correlationWindow    time.Duration
	correlationThreshold float64
}

// New builds a Synchronizer against db and graph.
func New(db database.DB, graph GraphWriter, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		db:                   db,
		graph:                graph,
		nearRadiusKM:         defaultNearRadiusKM,
		correlationWindow:    defaultCorrelationWindow,
		correlationThreshold: defaultCorrelationThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one full synchronization pass: nodes first, then every
// relation kind. Each step is independent — a failure partway through
// still leaves every prior step's writes in place, since graph writes
// are idempotent MERGEs.
func (s *Synchronizer) Sync(ctx context.Context) (Result, error) {
	var result Result

	stations, err := s.loadStations(ctx)
	if err != nil {
		return result, err
	}

	if err := s.syncStationNodes(ctx, stations, &result); err != nil {
		return result, err
	}

	parameters, err := s.loadParameters(ctx)
	if err != nil {
		return result, err
	}
	for _, p := range parameters {
		if err := s.graph.MergeNode(ctx, graphstore.Node{
			Label: model.LabelParametre, Key: "code_param", KeyValue: p.CodeParam,
			Props: map[string]any{"label": p.Label, "unit": p.Unit, "family": p.Family},
		}); err != nil {
			return result, apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("merging parameter %s", p.CodeParam))
		}
		result.ParametreNodes++
	}

	if err := s.syncHasParamRelations(ctx, &result); err != nil {
		return result, err
	}

	if err := s.syncNearRelations(ctx, stations, &result); err != nil {
		return result, err
	}

	if err := s.syncCorrelatedRelations(ctx, stations, &result); err != nil {
		return result, err
	}

	if err := s.syncCorrelatedWithRelations(ctx, &result); err != nil {
		return result, err
	}

	return result, nil
}

func (s *Synchronizer) syncStationNodes(ctx context.Context, stations []model.Station, result *Result) error {
	communesSeen := make(map[string]bool)
	massesSeen := make(map[string]bool)

	for _, st := range stations {
		if err := s.graph.MergeNode(ctx, graphstore.Node{
			Label: model.LabelStation, Key: "station_code", KeyValue: st.StationCode,
			Props: map[string]any{"label": st.Label, "type": st.Type},
		}); err != nil {
			return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("merging station %s", st.StationCode))
		}
		result.StationNodes++

		if st.INSEE != "" {
			if !communesSeen[st.INSEE] {
				if err := s.graph.MergeNode(ctx, graphstore.Node{
					Label: model.LabelCommune, Key: "insee", KeyValue: st.INSEE,
				}); err != nil {
					return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("merging commune %s", st.INSEE))
				}
				communesSeen[st.INSEE] = true
				result.CommuneNodes++
			}
			if err := s.graph.MergeRelation(ctx, graphstore.Relation{
				Type:      model.RelLocatedIn,
				FromLabel: model.LabelStation, FromKey: "station_code", FromValue: st.StationCode,
				ToLabel: model.LabelCommune, ToKey: "insee", ToValue: st.INSEE,
			}); err != nil {
				return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("relating %s to commune %s", st.StationCode, st.INSEE))
			}
			result.LocatedInRelations++
		}

		if st.MasseEauCode != "" {
			if !massesSeen[st.MasseEauCode] {
				if err := s.graph.MergeNode(ctx, graphstore.Node{
					Label: model.LabelMasseEau, Key: "code", KeyValue: st.MasseEauCode,
				}); err != nil {
					return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("merging masse d'eau %s", st.MasseEauCode))
				}
				massesSeen[st.MasseEauCode] = true
				result.MasseEauNodes++
			}
			if err := s.graph.MergeRelation(ctx, graphstore.Relation{
				Type:      model.RelInMasse,
				FromLabel: model.LabelStation, FromKey: "station_code", FromValue: st.StationCode,
				ToLabel: model.LabelMasseEau, ToKey: "code", ToValue: st.MasseEauCode,
			}); err != nil {
				return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("relating %s to masse d'eau %s", st.StationCode, st.MasseEauCode))
			}
			result.InMasseRelations++
		}
	}
	return nil
}

func (s *Synchronizer) loadStations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.db.Query(ctx, `
		SELECT station_code, label, type, insee, masse_eau_code, longitude, latitude
		FROM stations
	`)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "loading stations")
	}
	defer rows.Close()

	var stations []model.Station
	for rows.Next() {
		var st model.Station
		var label, stype, insee, masse *string
		var lon, lat *float64
		if err := rows.Scan(&st.StationCode, &label, &stype, &insee, &masse, &lon, &lat); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "scanning station row")
		}
		if label != nil {
			st.Label = *label
		}
		if stype != nil {
			st.Type = *stype
		}
		if insee != nil {
			st.INSEE = *insee
		}
		if masse != nil {
			st.MasseEauCode = *masse
		}
		if lon != nil && lat != nil {
			st.Geom[0], st.Geom[1] = *lon, *lat
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "iterating stations")
	}
	return stations, nil
}

func (s *Synchronizer) loadParameters(ctx context.Context) ([]model.Parameter, error) {
	rows, err := s.db.Query(ctx, `SELECT code_param, label, unit, family FROM parameters`)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "loading parameters")
	}
	defer rows.Close()

	var params []model.Parameter
	for rows.Next() {
		var p model.Parameter
		var label, unit, family *string
		if err := rows.Scan(&p.CodeParam, &label, &unit, &family); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "scanning parameter row")
		}
		if label != nil {
			p.Label = *label
		}
		if unit != nil {
			p.Unit = *unit
		}
		if family != nil {
			p.Family = *family
		}
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "iterating parameters")
	}
	return params, nil
}

// syncHasParamRelations derives HAS_PARAM from every distinct
// (station_code, param_code) pair observed in measure_quality.
func (s *Synchronizer) syncHasParamRelations(ctx context.Context, result *Result) error {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT station_code, param_code FROM measure_quality`)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeGraphWrite, "loading station/parameter pairs")
	}
	defer rows.Close()

	for rows.Next() {
		var stationCode, paramCode string
		if err := rows.Scan(&stationCode, &paramCode); err != nil {
			return apperror.Wrap(err, apperror.CodeGraphWrite, "scanning station/parameter row")
		}
		if err := s.graph.MergeRelation(ctx, graphstore.Relation{
			Type:      model.RelHasParam,
			FromLabel: model.LabelStation, FromKey: "station_code", FromValue: stationCode,
			ToLabel: model.LabelParametre, ToKey: "code_param", ToValue: paramCode,
		}); err != nil {
			return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("relating %s to parameter %s", stationCode, paramCode))
		}
		result.HasParamRelations++
	}
	return rows.Err()
}

// syncCorrelatedWithRelations derives CORRELATED_WITH between parameter
// pairs co-measured on at least defaultMinCoMeasuredStations distinct
// stations.
func (s *Synchronizer) syncCorrelatedWithRelations(ctx context.Context, result *Result) error {
	rows, err := s.db.Query(ctx, `
		SELECT a.param_code, b.param_code, COUNT(DISTINCT a.station_code) AS n
		FROM measure_quality a
		JOIN measure_quality b ON a.station_code = b.station_code AND a.param_code < b.param_code
		GROUP BY a.param_code, b.param_code
		HAVING COUNT(DISTINCT a.station_code) >= $1
	`, defaultMinCoMeasuredStations)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeGraphWrite, "loading co-measured parameter pairs")
	}
	defer rows.Close()

	for rows.Next() {
		var param1, param2 string
		var stationCount int
		if err := rows.Scan(&param1, &param2, &stationCount); err != nil {
			return apperror.Wrap(err, apperror.CodeGraphWrite, "scanning parameter pair row")
		}
		if err := s.graph.MergeRelation(ctx, graphstore.Relation{
			Type:      model.RelCorrelatedWith,
			FromLabel: model.LabelParametre, FromKey: "code_param", FromValue: param1,
			ToLabel: model.LabelParametre, ToKey: "code_param", ToValue: param2,
			Props: map[string]any{"co_measured_stations": stationCount},
		}); err != nil {
			return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("relating parameter %s to %s", param1, param2))
		}
		result.CorrelatedWithRelations++
	}
	return rows.Err()
}
