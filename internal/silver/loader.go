// Package silver projects Bronze pages into the time-series and
// spatial warehouse: typed rows, resolved geometry, and batched
// upserts scoped to one partition at a time.
package silver

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"

	"hydropipe/internal/geo"
	"hydropipe/internal/model"
	"hydropipe/pkg/apperror"
	"hydropipe/pkg/database"
)

// Loader projects decoded Bronze records (read back via bronze.Writer)
// and upserts them into the warehouse.
type Loader struct {
	db database.DB
}

// New builds a Loader against db.
func New(db database.DB) *Loader {
	return &Loader{db: db}
}

// measureFieldChains maps a measurement theme to the record field
// fallback chain used to extract its station code, timestamp, and
// value, mirroring the source pipeline's tolerance for hub'eau's
// inconsistent field naming across endpoint versions.
type measureFieldChains struct {
	stationCode []string
	timestamp   []string
	value       []string
	quality     []string
}

var themeFieldChains = map[string]measureFieldChains{
	"piezo": {
		stationCode: []string{"bss_id", "code_bss"},
		timestamp:   []string{"date_mesure"},
		value:       []string{"niveau_nappe_eau", "niveau_nappe", "valeur"},
		quality:     []string{"qualification", "code_qualite"},
	},
	"hydro": {
		stationCode: []string{"code_station"},
		timestamp:   []string{"date_obs"},
		value:       []string{"resultat_obs", "hauteur_eau", "debit", "valeur"},
		quality:     []string{"code_qualite"},
	},
	"temperature": {
		stationCode: []string{"code_station"},
		timestamp:   []string{"date_mesure_temp"},
		value:       []string{"resultat", "temperature", "valeur"},
		quality:     []string{"code_qualite"},
	},
}

// LoadMeasurements projects records of theme from source into the
// measurements hypertable, scoped to partitionKey's calendar day:
// existing rows for (source, theme, [day, day+1)) are deleted before
// the fresh batch is inserted, in one transaction, so a re-run of a
// partition is idempotent rather than additive.
func (l *Loader) LoadMeasurements(ctx context.Context, theme, source, partitionKey string, records []map[string]any) (int, error) {
	chains, ok := themeFieldChains[theme]
	if !ok {
		return 0, apperror.New(apperror.CodeConfigError, fmt.Sprintf("unknown measurement theme %q", theme))
	}

	day, err := time.Parse("2006-01-02", partitionKey)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.CodeInvalidArgument, fmt.Sprintf("parsing partition key %s", partitionKey))
	}
	dayEnd := day.AddDate(0, 0, 1)

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		code := firstString(record, chains.stationCode...)
		ts, ok := parseTime(firstValue(record, chains.timestamp...))
		if code == "" || !ok {
			continue
		}
		value := toFloat(firstValue(record, chains.value...))
		quality := toStringPtr(firstValue(record, chains.quality...))

		rows = append(rows, []any{code, theme, ts, value, quality, source})
	}

	return database.WithTransactionResult(ctx, l.db, func(tx pgx.Tx) (int, error) {
		if _, err := tx.Exec(ctx, `
			DELETE FROM measurements
			WHERE source = $1 AND theme = $2 AND ts >= $3 AND ts < $4
		`, source, theme, day, dayEnd); err != nil {
			return 0, apperror.Wrap(err, apperror.CodeWarehouseWrite, "clearing existing measurement partition")
		}

		return upsertBatch(ctx, tx, "measurements",
			[]string{"station_code", "theme", "ts", "value", "quality", "source"},
			[]string{"station_code", "theme", "ts"},
			rows,
		)
	})
}

// LoadMeasureQuality projects water-quality analysis records into
// measure_quality, with the same delete-then-insert idempotence as
// LoadMeasurements.
func (l *Loader) LoadMeasureQuality(ctx context.Context, source, partitionKey string, records []map[string]any) (int, error) {
	day, err := time.Parse("2006-01-02", partitionKey)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.CodeInvalidArgument, fmt.Sprintf("parsing partition key %s", partitionKey))
	}
	dayEnd := day.AddDate(0, 0, 1)

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		code := firstString(record, "code_station", "code_bss")
		paramCode := firstString(record, "code_parametre", "code_param")
		ts, ok := parseTime(firstValue(record, "date_prelevement", "date_debut_prelevement"))
		if code == "" || paramCode == "" || !ok {
			continue
		}
		value := toFloat(firstValue(record, "resultat", "valeur"))
		unit := toStringPtr(firstValue(record, "code_unite", "unite"))
		qualityCode := toStringPtr(firstValue(record, "code_remarque", "code_qualite"))

		rows = append(rows, []any{code, paramCode, ts, value, unit, qualityCode, source})
	}

	return database.WithTransactionResult(ctx, l.db, func(tx pgx.Tx) (int, error) {
		if _, err := tx.Exec(ctx, `
			DELETE FROM measure_quality
			WHERE source = $1 AND ts >= $2 AND ts < $3
		`, source, day, dayEnd); err != nil {
			return 0, apperror.Wrap(err, apperror.CodeWarehouseWrite, "clearing existing quality partition")
		}

		return upsertBatch(ctx, tx, "measure_quality",
			[]string{"station_code", "param_code", "ts", "value", "unit", "quality_code", "source"},
			[]string{"station_code", "param_code", "ts"},
			rows,
		)
	})
}

// LoadStations projects referential station records for stationType
// ("piezo", "hydro", "temperature", "quality_surface") into stations, resolving
// geometry from either WGS84 lon/lat fields or Lambert-93 x/y fields.
func (l *Loader) LoadStations(ctx context.Context, stationType string, records []map[string]any) (int, error) {
	rows := make([][]any, 0, len(records))

	for _, record := range records {
		code := firstString(record, "code_bss", "code_station")
		if code == "" {
			continue
		}
		label := firstString(record, "libelle_pe", "libelle_station", "libelle_site", "nom_commune", "libelle")
		insee := firstString(record, "code_commune_insee", "code_commune_station", "code_commune_site", "code_commune")
		masseEau := firstString(record, "code_masse_eau")

		lon := toFloat(firstValue(record, "lon", "longitude_station", "longitude"))
		lat := toFloat(firstValue(record, "lat", "latitude_station", "latitude"))
		x := toFloat(firstValue(record, "x2154", "coordonnee_x_station", "coordonnee_x"))
		y := toFloat(firstValue(record, "y2154", "coordonnee_y_station", "coordonnee_y"))

		point, hasGeom := geo.ResolveGeom(lon, lat, x, y)

		var pointLon, pointLat *float64
		if hasGeom {
			l, la := point[0], point[1]
			pointLon, pointLat = &l, &la
		}

		rows = append(rows, []any{code, label, stationType, insee, masseEau, pointLon, pointLat})
	}

	return database.WithTransactionResult(ctx, l.db, func(tx pgx.Tx) (int, error) {
		return upsertBatch(ctx, tx, "stations",
			[]string{"station_code", "label", "type", "insee", "masse_eau_code", "longitude", "latitude"},
			[]string{"station_code"},
			rows,
		)
	})
}

// LoadParameters projects the SANDRE parameter référentiel into
// parameters.
func (l *Loader) LoadParameters(ctx context.Context, records []map[string]any) (int, error) {
	rows := make([][]any, 0, len(records))
	for _, record := range records {
		code := firstString(record, "CdParametre", "code_param")
		if code == "" {
			continue
		}
		label := firstString(record, "NomParametre", "label")
		unit := firstString(record, "SymUniteMesure", "unit")
		family := firstString(record, "NomGroupeParametre", "family")

		rows = append(rows, []any{code, label, unit, family})
	}

	return database.WithTransactionResult(ctx, l.db, func(tx pgx.Tx) (int, error) {
		return upsertBatch(ctx, tx, "parameters",
			[]string{"code_param", "label", "unit", "family"},
			[]string{"code_param"},
			rows,
		)
	})
}

// LoadMeteoGrid projects grid cells into meteo_grid, then recomputes
// every station's nearest cell in full — cheap relative to the Bronze
// fetch and simplest to keep correct after any grid cell changes.
func (l *Loader) LoadMeteoGrid(ctx context.Context, cells []model.MeteoGridCell) (int, error) {
	rows := make([][]any, len(cells))
	for i, cell := range cells {
		rows[i] = []any{cell.GridID, cell.Geom[0], cell.Geom[1]}
	}

	inserted, err := database.WithTransactionResult(ctx, l.db, func(tx pgx.Tx) (int, error) {
		return upsertBatch(ctx, tx, "meteo_grid",
			[]string{"grid_id", "longitude", "latitude"},
			[]string{"grid_id"},
			rows,
		)
	})
	if err != nil {
		return 0, err
	}

	if err := l.recomputeStationGridCells(ctx, cells); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// recomputeStationGridCells assigns every station its nearest grid
// cell by haversine distance, a brute-force O(stations*cells) scan
// that is acceptable at this dataset's scale (a handful of thousand
// stations against a few hundred grid cells).
func (l *Loader) recomputeStationGridCells(ctx context.Context, cells []model.MeteoGridCell) error {
	if len(cells) == 0 {
		return nil
	}

	rows, err := l.db.Query(ctx, `SELECT station_code, longitude, latitude FROM stations WHERE longitude IS NOT NULL AND latitude IS NOT NULL`)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeWarehouseWrite, "reading stations for grid assignment")
	}
	defer rows.Close()

	type stationPoint struct {
		code string
		lon  float64
		lat  float64
	}
	var stations []stationPoint
	for rows.Next() {
		var s stationPoint
		if err := rows.Scan(&s.code, &s.lon, &s.lat); err != nil {
			return apperror.Wrap(err, apperror.CodeWarehouseWrite, "scanning station row")
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return apperror.Wrap(err, apperror.CodeWarehouseWrite, "iterating stations")
	}

	assignments := make([][]any, 0, len(stations))
	for _, s := range stations {
		point := orb.Point{s.lon, s.lat}

		best := cells[0]
		bestDistance := geo.HaversineKM(point, best.Geom)
		for _, cell := range cells[1:] {
			d := geo.HaversineKM(point, cell.Geom)
			if d < bestDistance {
				best, bestDistance = cell, d
			}
		}
		assignments = append(assignments, []any{s.code, best.GridID, bestDistance})
	}

	return database.WithTransaction(ctx, l.db, func(tx pgx.Tx) error {
		_, err := upsertBatch(ctx, tx, "station_grid_cell",
			[]string{"station_code", "grid_id", "distance_km"},
			[]string{"station_code"},
			assignments,
		)
		return err
	})
}
