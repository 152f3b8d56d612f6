package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestLambert93ToWGS84_CentralParis(t *testing.T) {
	lon, lat := Lambert93ToWGS84(652000, 6862000)

	assert.GreaterOrEqual(t, lon, 2.34)
	assert.LessOrEqual(t, lon, 2.37)
	assert.GreaterOrEqual(t, lat, 48.84)
	assert.LessOrEqual(t, lat, 48.87)
}

func TestHaversineKM_NearbyStations(t *testing.T) {
	a := orb.Point{2.35, 48.85}
	b := orb.Point{2.36, 48.86}

	d := HaversineKM(a, b)

	assert.InDelta(t, 1.4, d, 0.3)
}

func TestHaversineKM_FarStation(t *testing.T) {
	a := orb.Point{2.35, 48.85}
	c := orb.Point{3.00, 50.00}

	d := HaversineKM(a, c)

	assert.Greater(t, d, 50.0)
}

func TestResolveGeom_LonLatWins(t *testing.T) {
	lon, lat := 2.35, 48.85
	x, y := 652000.0, 6862000.0

	p, ok := ResolveGeom(&lon, &lat, &x, &y)

	assert.True(t, ok)
	assert.Equal(t, orb.Point{2.35, 48.85}, p)
}

func TestResolveGeom_FallsBackToLambert(t *testing.T) {
	x, y := 652000.0, 6862000.0

	p, ok := ResolveGeom(nil, nil, &x, &y)

	assert.True(t, ok)
	assert.InDelta(t, 2.35, p[0], 0.02)
	assert.InDelta(t, 48.85, p[1], 0.02)
}

func TestResolveGeom_NeitherPresent(t *testing.T) {
	_, ok := ResolveGeom(nil, nil, nil, nil)
	assert.False(t, ok)
}
