package geom

import "math"

// EarthRadiusMeters is the mean Earth radius (IUGG) used by every distance in the matcher.
const EarthRadiusMeters = 6371008.8

const degToRad = math.Pi / 180.0

// GreatCircleDistance calculates the distance between two points in meters using the Haversine formula.
// A NaN in any coordinate yields NaN.
func GreatCircleDistance(lon1, lat1, lon2, lat2 float64) float64 {
	lat1Rad := lat1 * degToRad
	lat2Rad := lat2 * degToRad
	return haversine(lat1Rad, math.Cos(lat1Rad), lon1*degToRad, lat2Rad, math.Cos(lat2Rad), lon2*degToRad)
}

// haversine works on pre-converted radians so the batch kernel can hoist the
// per-point trigonometry out of its inner loop.
func haversine(lat1, cosLat1, lon1, lat2, cosLat2, lon2 float64) float64 {
	sinDLat := math.Sin((lat2 - lat1) * 0.5)
	sinDLon := math.Sin((lon2 - lon1) * 0.5)
	h := sinDLat*sinDLat + cosLat1*cosLat2*sinDLon*sinDLon
	// rounding can push h past 1 for antipodal points; math.Min keeps NaN
	h = math.Min(h, 1)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// MetersToDegrees converts a distance around a latitude into the lon/lat deltas
// that cover it. Used to grow bounding boxes by a tolerance.
func MetersToDegrees(lat, meters float64) (deltaLon, deltaLat float64) {
	metersPerDegreeLat := EarthRadiusMeters * degToRad
	metersPerDegreeLon := metersPerDegreeLat * math.Cos(lat*degToRad)

	deltaLat = meters / metersPerDegreeLat
	if metersPerDegreeLon < 1e-9 {
		return 180, deltaLat
	}
	deltaLon = meters / metersPerDegreeLon
	if deltaLon > 180 {
		deltaLon = 180
	}
	return deltaLon, deltaLat
}
