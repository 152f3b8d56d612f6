package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKM is the sphere radius used for every great-circle distance
// in this pipeline, pinned per the NEAR relation's canonical formula.
const EarthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between a and b in
// kilometres, on a sphere of radius EarthRadiusKM.
func HaversineKM(a, b orb.Point) float64 {
	lon1, lat1 := a[0]*math.Pi/180, a[1]*math.Pi/180
	lon2, lat2 := b[0]*math.Pi/180, b[1]*math.Pi/180

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusKM * math.Asin(math.Sqrt(h))
}

// ResolveGeom picks the authoritative geometry for a row: lon/lat wins
// when present, otherwise a Lambert-93 x/y pair is reprojected. Returns
// the zero Point and false when neither source is available.
func ResolveGeom(lon, lat *float64, lambertX, lambertY *float64) (orb.Point, bool) {
	if lon != nil && lat != nil {
		return orb.Point{*lon, *lat}, true
	}
	if lambertX != nil && lambertY != nil {
		resolvedLon, resolvedLat := Lambert93ToWGS84(*lambertX, *lambertY)
		return orb.Point{resolvedLon, resolvedLat}, true
	}
	return orb.Point{}, false
}
