package audience

import "math"

const earthRadiusMeters = 6371000

// Point is a geographic coordinate.
type Point struct {
	Latitude  float64
	Longitude float64
}

// DistanceMeters computes the haversine distance between two points.
// This is the Go mirror of the SQL expression in internal/db; the two are
// the single distance definition shared with the client targeting preview
// and must stay in sync.
func DistanceMeters(a, b Point) float64 {
	dLat := radians(b.Latitude - a.Latitude)
	dLng := radians(b.Longitude - a.Longitude)

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*
			math.Pow(math.Sin(dLng/2), 2)

	return earthRadiusMeters * 2 * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
