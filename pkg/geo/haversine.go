// Package geo provides the great-circle distance calculation used by the
// check-in geofence and the client-side location tracker.
package geo

import "math"

// earthRadiusM is the mean Earth radius in meters.
const earthRadiusM = 6371000.0

// DistanceM returns the great-circle distance in meters between two
// WGS84 coordinates using the haversine formula.
func DistanceM(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// WithinRadius reports whether the point is inside the given geofence.
func WithinRadius(lat, lng, centerLat, centerLng, radiusM float64) bool {
	return DistanceM(lat, lng, centerLat, centerLng) <= radiusM
}
