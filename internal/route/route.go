package route

import (
	"fmt"
	"math"

	"github.com/example/scrap-tracking/internal/geo"
	"github.com/example/scrap-tracking/internal/models"
)

// Provider resolves display route stats between the mover and the
// pickup address. Failure is non-fatal: the overlay is simply omitted.
type Provider interface {
	Stats(from, to models.GeoPosition) (models.RouteStats, error)
}

// Estimate is the no-dependency fallback: straight-line distance at a
// default city speed.
func Estimate(from, to models.GeoPosition, speedMps float64) models.RouteStats {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h default city speed
	}
	d := geo.Haversine(from, to)
	secs := d / speedMps
	return models.RouteStats{
		DistanceText:    formatDistance(d),
		DurationText:    formatDuration(secs),
		DurationSeconds: secs,
	}
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

func formatDuration(seconds float64) string {
	mins := int(math.Round(seconds / 60))
	if mins < 1 {
		mins = 1
	}
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	return fmt.Sprintf("%d hr %d min", mins/60, mins%60)
}
