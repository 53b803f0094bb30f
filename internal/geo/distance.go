// Package geo computes great-circle distances for geofence checks.
package geo

import "math"

// EarthRadiusMeters is the mean radius of the spherical Earth model.
const EarthRadiusMeters = 6_371_000.0

// DistanceMeters returns the Haversine distance between two points given in
// decimal degrees. The result is finite and non-negative for valid input.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// Rounding can push a a hair past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Within reports whether (lat, lon) lies inside the circle of radius meters
// around (centerLat, centerLon). The boundary counts as inside.
func Within(lat, lon, centerLat, centerLon, radius float64) bool {
	return DistanceMeters(lat, lon, centerLat, centerLon) <= radius
}

// Offset returns the point reached by travelling meters due north from
// (lat, lon). Used to build boundary fixtures.
func Offset(lat, lon, meters float64) (float64, float64) {
	return lat + degrees(meters/EarthRadiusMeters), lon
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
