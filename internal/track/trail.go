package track

import (
	"sync"

	"github.com/example/scrap-tracking/internal/models"
)

// DefaultTrailCapacity bounds the breadcrumb buffer per tracked order.
const DefaultTrailCapacity = 50

// Trail keeps a bounded FIFO of recently rendered positions for
// breadcrumb display. Oldest samples are dropped once capacity is hit.
type Trail struct {
	mu      sync.Mutex
	cap     int
	samples []models.LiveTrackSample
}

func NewTrail(capacity int) *Trail {
	if capacity <= 0 {
		capacity = DefaultTrailCapacity
	}
	return &Trail{cap: capacity, samples: make([]models.LiveTrackSample, 0, capacity)}
}

func (t *Trail) Append(s models.LiveTrackSample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, s)
	if len(t.samples) > t.cap {
		t.samples = t.samples[len(t.samples)-t.cap:]
	}
}

func (t *Trail) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = t.samples[:0]
}

// Snapshot returns a copy; callers never see the internal buffer.
func (t *Trail) Snapshot() []models.LiveTrackSample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.LiveTrackSample, len(t.samples))
	copy(out, t.samples)
	return out
}

func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}
