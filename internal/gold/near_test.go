package gold

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"hydropipe/internal/model"
)

func TestNearCandidatePairs_SameBucketStationsPaired(t *testing.T) {
	stations := []model.Station{
		{StationCode: "A", Geom: orb.Point{2.35, 48.85}},
		{StationCode: "B", Geom: orb.Point{2.36, 48.86}},
	}

	pairs := nearCandidatePairs(stations)

	assert.Len(t, pairs, 1)
	assert.Equal(t, "A", pairs[0][0].StationCode)
	assert.Equal(t, "B", pairs[0][1].StationCode)
}

func TestNearCandidatePairs_SkipsUngeolocatedStations(t *testing.T) {
	stations := []model.Station{
		{StationCode: "A"},
		{StationCode: "B", Geom: orb.Point{2.36, 48.86}},
	}

	pairs := nearCandidatePairs(stations)

	assert.Empty(t, pairs)
}

func TestNearCandidatePairs_FarStationsNotInAdjacentBuckets(t *testing.T) {
	stations := []model.Station{
		{StationCode: "A", Geom: orb.Point{2.35, 48.85}},
		{StationCode: "C", Geom: orb.Point{10.0, 45.0}},
	}

	pairs := nearCandidatePairs(stations)

	assert.Empty(t, pairs)
}

func TestBucketOf_GroupsNearbyPoints(t *testing.T) {
	a := bucketOf(2.35, 48.85)
	b := bucketOf(2.36, 48.86)
	assert.Equal(t, a, b)
}
