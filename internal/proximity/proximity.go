// Package proximity holds the geometric and network-origin tests used to decide
// whether a client is at the facility.
package proximity

import (
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6_371_000.0

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// rounding can push a just past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is DistanceMeters over Coordinates.
func Distance(a, b Coordinates) float64 {
	return DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
}

// WithinRadius reports distance <= radius.
func WithinRadius(distance, radiusMeters float64) bool {
	return distance <= radiusMeters
}

// ParseCoordinates parses query-string coordinates. It reports false for
// anything missing, unparsable or outside the valid lat/lon range.
func ParseCoordinates(lat, lon string) (Coordinates, bool) {
	lat = strings.TrimSpace(lat)
	lon = strings.TrimSpace(lon)
	if lat == "" || lon == "" {
		return Coordinates{}, false
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return Coordinates{}, false
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return Coordinates{}, false
	}
	c := Coordinates{Lat: la, Lon: lo}
	if !c.Valid() {
		return Coordinates{}, false
	}
	return c, true
}

// Valid reports whether c is a finite point on the globe.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
