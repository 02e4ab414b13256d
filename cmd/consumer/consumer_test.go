package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/scrap-tracking/internal/geo"
	"github.com/example/scrap-tracking/internal/models"
)

type fakeSink struct {
	failGeo  int // GeoAdd failures before succeeding
	failH    int // HSet failures before succeeding
	geoCalls int
	hCalls   int
	lastKey  string
	lastMeta map[string]interface{}
}

func (f *fakeSink) GeoAdd(ctx context.Context, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeSink) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastKey = key
	f.lastMeta = values
	return nil
}

func TestStoreWithRetrySucceedsAfterFailures(t *testing.T) {
	f := &fakeSink{failGeo: 1, failH: 1}
	u := &models.LocationUpdate{ScrapperID: "s1", OrderID: "ord-1", Position: models.GeoPosition{Lat: 1, Lng: 2}, Heading: 45}
	start := time.Now()
	if err := storeWithRetry(context.Background(), f, u, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestStoreWithRetryFailsWhenExhausted(t *testing.T) {
	f := &fakeSink{failGeo: 5}
	u := &models.LocationUpdate{ScrapperID: "s1", Position: models.GeoPosition{Lat: 1, Lng: 2}}
	if err := storeWithRetry(context.Background(), f, u, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestStoreWritesSharedMetaLayout(t *testing.T) {
	f := &fakeSink{}
	captured := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	u := &models.LocationUpdate{ScrapperID: "s1", OrderID: "ord-1", Heading: 45, CapturedAt: captured}
	if err := storeWithRetry(context.Background(), f, u, 1, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if f.lastKey != geo.MetaKey("s1") {
		t.Fatalf("meta key %q", f.lastKey)
	}
	for _, field := range []string{"order_id", "heading", "captured"} {
		if _, ok := f.lastMeta[field]; !ok {
			t.Fatalf("meta hash missing %q: %v", field, f.lastMeta)
		}
	}
	if f.lastMeta["captured"] != captured.Format(time.RFC3339) {
		t.Fatalf("captured %v", f.lastMeta["captured"])
	}
}
