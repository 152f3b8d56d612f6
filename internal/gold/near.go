package gold

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"hydropipe/internal/geo"
	"hydropipe/internal/model"
	"hydropipe/pkg/apperror"
	"hydropipe/pkg/graphstore"
)

// nearBucketDegrees coarsens the candidate search to a grid roughly the
// size of the default NEAR radius, so only stations in the same or an
// adjacent cell are ever distance-checked against each other.
const nearBucketDegrees = 0.5

type gridCell struct{ x, y int }

func bucketOf(lon, lat float64) gridCell {
	return gridCell{int(math.Floor(lon / nearBucketDegrees)), int(math.Floor(lat / nearBucketDegrees))}
}

// nearCandidatePairs buckets geolocated stations onto a coarse grid and
// returns every cross-bucket-neighbor pair once, canonicalized
// station1 < station2. This keeps the scan near-linear in station count
// instead of the O(n^2) every-pair comparison a flat distance matrix
// would require.
func nearCandidatePairs(stations []model.Station) [][2]model.Station {
	buckets := make(map[gridCell][]model.Station)
	for _, st := range stations {
		if st.Geom == (orb.Point{}) {
			continue
		}
		cell := bucketOf(st.Geom[0], st.Geom[1])
		buckets[cell] = append(buckets[cell], st)
	}

	seen := make(map[string]bool)
	var pairs [][2]model.Station

	for cell, group := range buckets {
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				neighbor := gridCell{cell.x + dx, cell.y + dy}
				for _, a := range group {
					for _, b := range buckets[neighbor] {
						if a.StationCode == b.StationCode {
							continue
						}
						s1, s2 := a, b
						if s2.StationCode < s1.StationCode {
							s1, s2 = s2, s1
						}
						key := s1.StationCode + "|" + s2.StationCode
						if seen[key] {
							continue
						}
						seen[key] = true
						pairs = append(pairs, [2]model.Station{s1, s2})
					}
				}
			}
		}
	}
	return pairs
}

func (s *Synchronizer) syncNearRelations(ctx context.Context, stations []model.Station, result *Result) error {
	for _, pair := range nearCandidatePairs(stations) {
		a, b := pair[0], pair[1]
		distance := geo.HaversineKM(a.Geom, b.Geom)
		if distance > s.nearRadiusKM {
			continue
		}
		if err := s.graph.MergeRelation(ctx, graphstore.Relation{
			Type:      model.RelNear,
			FromLabel: model.LabelStation, FromKey: "station_code", FromValue: a.StationCode,
			ToLabel: model.LabelStation, ToKey: "station_code", ToValue: b.StationCode,
			Props: map[string]any{"distance_km": distance},
		}); err != nil {
			return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("relating %s NEAR %s", a.StationCode, b.StationCode))
		}
		result.NearRelations++
	}
	return nil
}
