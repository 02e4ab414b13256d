package geo

import (
	"math"

	"github.com/example/scrap-tracking/internal/models"
)

// Equal reports whether two positions match exactly on both axes.
// Display logic treats an exact match as "no movement".
func Equal(a, b models.GeoPosition) bool {
	return a.Lat == b.Lat && a.Lng == b.Lng
}

// Heading returns the marker rotation in degrees for a move from to b.
// Longitude delta is the Y argument and latitude delta the X argument;
// the rendering layer was calibrated against this convention, so it is
// kept as-is rather than the usual compass bearing.
func Heading(from, to models.GeoPosition) float64 {
	return math.Atan2(to.Lng-from.Lng, to.Lat-from.Lat) * 180 / math.Pi
}

// Haversine distance in meters
func Haversine(a, b models.GeoPosition) float64 {
	const R = 6371000.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

// Lerp linearly interpolates between two positions at t in [0,1].
func Lerp(from, to models.GeoPosition, t float64) models.GeoPosition {
	return models.GeoPosition{
		Lat: from.Lat + (to.Lat-from.Lat)*t,
		Lng: from.Lng + (to.Lng-from.Lng)*t,
	}
}
