package geo

import (
	"math"
	"testing"
	"time"

	"github.com/example/scrap-tracking/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(models.GeoPosition{}, models.GeoPosition{})
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHeadingCardinal(t *testing.T) {
	origin := models.GeoPosition{Lat: 0, Lng: 0}
	// pure latitude increase maps to 0 degrees under the marker convention
	if h := Heading(origin, models.GeoPosition{Lat: 1, Lng: 0}); math.Abs(h) > 1e-9 {
		t.Fatalf("expected 0, got %f", h)
	}
	// pure longitude increase maps to 90 degrees
	if h := Heading(origin, models.GeoPosition{Lat: 0, Lng: 1}); math.Abs(h-90) > 1e-9 {
		t.Fatalf("expected 90, got %f", h)
	}
	if h := Heading(origin, models.GeoPosition{Lat: 0, Lng: -1}); math.Abs(h+90) > 1e-9 {
		t.Fatalf("expected -90, got %f", h)
	}
}

func TestMetaFieldsStampMissingCaptureTime(t *testing.T) {
	fields := MetaFields(models.LocationUpdate{ScrapperID: "s1", OrderID: "ord-1", Heading: 45})
	raw, ok := fields["captured"].(string)
	if !ok || raw == "" {
		t.Fatalf("captured field: %v", fields["captured"])
	}
	if _, err := time.Parse(time.RFC3339, raw); err != nil {
		t.Fatalf("captured not RFC3339: %v", err)
	}
	if fields["heading"] != "45" {
		t.Fatalf("heading: %v", fields["heading"])
	}
}

func TestLerpEndpoints(t *testing.T) {
	a := models.GeoPosition{Lat: 12.9, Lng: 77.5}
	b := models.GeoPosition{Lat: 13.1, Lng: 77.7}
	if got := Lerp(a, b, 0); !Equal(got, a) {
		t.Fatalf("t=0 should return start, got %+v", got)
	}
	if got := Lerp(a, b, 1); !Equal(got, b) {
		t.Fatalf("t=1 should return end, got %+v", got)
	}
}
