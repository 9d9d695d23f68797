// Package geo computes great-circle distances between WGS-84 coordinates.
package geo

import "math"

// EarthRadius is the mean Earth radius in meters used by Distance.
const EarthRadius = 6371000.0

// Coordinate is a single position reading in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both components are finite and within WGS-84 bounds.
func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lon) &&
		c.Lat >= -90 && c.Lat <= 90 &&
		c.Lon >= -180 && c.Lon <= 180
}

// Distance returns the haversine distance between a and b in meters on a
// spherical Earth. Invalid input never panics: NaN propagates and callers are
// expected to treat any non-finite result as out of range (see InRange).
func Distance(a, b Coordinate) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadius * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// InRange reports whether d is a finite distance no greater than max.
func InRange(d, max float64) bool {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return false
	}
	return d <= max
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
