package route

import (
	"testing"

	"github.com/example/scrap-tracking/internal/models"
)

func TestEstimateFallback(t *testing.T) {
	a := models.GeoPosition{Lat: 12.9716, Lng: 77.5946}
	stats := Estimate(a, a, 10)
	if stats.DistanceText != "0 m" {
		t.Fatalf("distance text %q", stats.DistanceText)
	}
	if stats.DurationText != "1 min" {
		t.Fatalf("duration text %q", stats.DurationText)
	}

	b := models.GeoPosition{Lat: 13.0716, Lng: 77.5946}
	stats = Estimate(a, b, 10)
	if stats.DurationSeconds <= 0 {
		t.Fatalf("expected positive duration, got %f", stats.DurationSeconds)
	}
}

func TestFormatting(t *testing.T) {
	if got := formatDistance(950); got != "950 m" {
		t.Fatalf("got %q", got)
	}
	if got := formatDistance(3240); got != "3.2 km" {
		t.Fatalf("got %q", got)
	}
	if got := formatDuration(59 * 60); got != "59 min" {
		t.Fatalf("got %q", got)
	}
	if got := formatDuration(75 * 60); got != "1 hr 15 min" {
		t.Fatalf("got %q", got)
	}
}
