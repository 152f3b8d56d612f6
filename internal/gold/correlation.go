package gold

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"hydropipe/internal/geo"
	"hydropipe/internal/model"
	"hydropipe/pkg/apperror"
	"hydropipe/pkg/graphstore"
)

type seriesKey struct {
	station string
	theme   string
}

// syncCorrelatedRelations computes a Pearson correlation per shared
// theme for every station pair already within NEAR range — checking
// correlation only among spatially plausible neighbors keeps this a
// bucketed, near-linear scan rather than a full station x station x
// theme cross product.
func (s *Synchronizer) syncCorrelatedRelations(ctx context.Context, stations []model.Station, result *Result) error {
	pairs := nearCandidatePairs(stations)
	if len(pairs) == 0 {
		return nil
	}

	series, err := s.loadRecentSeries(ctx)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		a, b := pair[0], pair[1]
		if geo.HaversineKM(a.Geom, b.Geom) > s.nearRadiusKM {
			continue
		}

		for _, theme := range []string{"piezo", "hydro", "temperature"} {
			xs, ok1 := series[seriesKey{a.StationCode, theme}]
			ys, ok2 := series[seriesKey{b.StationCode, theme}]
			if !ok1 || !ok2 {
				continue
			}

			alignedX, alignedY := alignByTimestamp(xs, ys)
			if len(alignedX) < defaultMinCorrelationSamples {
				continue
			}

			rho := stat.Correlation(alignedX, alignedY, nil)
			if math.Abs(rho) <= s.correlationThreshold {
				continue
			}

			s1, s2 := a.StationCode, b.StationCode
			if err := s.graph.MergeRelation(ctx, graphstore.Relation{
				Type:      model.RelCorrelated,
				FromLabel: model.LabelStation, FromKey: "station_code", FromValue: s1,
				ToLabel: model.LabelStation, ToKey: "station_code", ToValue: s2,
				Props: map[string]any{"theme": theme, "rho": rho, "samples": len(alignedX)},
			}); err != nil {
				return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("relating %s CORRELATED %s", s1, s2))
			}
			result.CorrelatedRelations++
		}
	}
	return nil
}

// loadRecentSeries reads every measurement within the correlation
// window, keyed by (station, theme) and further indexed by timestamp
// for alignment.
func (s *Synchronizer) loadRecentSeries(ctx context.Context) (map[seriesKey]map[int64]float64, error) {
	since := windowStart(s.correlationWindow)

	rows, err := s.db.Query(ctx, `
		SELECT station_code, theme, ts, value
		FROM measurements
		WHERE ts >= $1 AND value IS NOT NULL
	`, since)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "loading recent measurements")
	}
	defer rows.Close()

	series := make(map[seriesKey]map[int64]float64)
	for rows.Next() {
		var station, theme string
		var ts time.Time
		var value float64
		if err := rows.Scan(&station, &theme, &ts, &value); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "scanning measurement row")
		}
		key := seriesKey{station, theme}
		if series[key] == nil {
			series[key] = make(map[int64]float64)
		}
		series[key][ts.Unix()] = value
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "iterating measurements")
	}
	return series, nil
}

func windowStart(window time.Duration) time.Time {
	return time.Now().UTC().Add(-window)
}

// alignByTimestamp returns the values from xs and ys at timestamps
// present in both series, in a stable (sorted) order.
func alignByTimestamp(xs, ys map[int64]float64) ([]float64, []float64) {
	var timestamps []int64
	for ts := range xs {
		if _, ok := ys[ts]; ok {
			timestamps = append(timestamps, ts)
		}
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	alignedX := make([]float64, len(timestamps))
	alignedY := make([]float64, len(timestamps))
	for i, ts := range timestamps {
		alignedX[i] = xs[ts]
		alignedY[i] = ys[ts]
	}
	return alignedX, alignedY
}
