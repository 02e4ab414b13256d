package track

import (
	"sync"
	"time"

	"github.com/example/scrap-tracking/internal/models"
)

// Tracker owns one animator and trail per live-tracked order. It is the
// single entry point the ingest path talks to.
type Tracker struct {
	steps    int
	frame    time.Duration
	trailCap int
	sink     Broadcaster

	mu    sync.Mutex
	anims map[string]*Animator
	trail map[string]*Trail
}

func NewTracker(steps int, frame time.Duration, trailCap int, sink Broadcaster) *Tracker {
	return &Tracker{
		steps:    steps,
		frame:    frame,
		trailCap: trailCap,
		sink:     sink,
		anims:    make(map[string]*Animator),
		trail:    make(map[string]*Trail),
	}
}

// Update feeds a fresh fix for an order, creating the animator lazily.
func (t *Tracker) Update(orderID string, pos models.GeoPosition) {
	t.mu.Lock()
	a, ok := t.anims[orderID]
	if !ok {
		tr := NewTrail(t.trailCap)
		t.trail[orderID] = tr
		a = NewAnimator(orderID, t.steps, t.frame, tr, t.sink)
		t.anims[orderID] = a
	}
	t.mu.Unlock()
	a.SetTarget(pos)
}

// Trail returns a breadcrumb snapshot for an order, oldest first.
func (t *Tracker) Trail(orderID string) []models.LiveTrackSample {
	t.mu.Lock()
	tr, ok := t.trail[orderID]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return tr.Snapshot()
}

// Position reports the last rendered position for an order.
func (t *Tracker) Position(orderID string) (models.GeoPosition, float64, bool) {
	t.mu.Lock()
	a, ok := t.anims[orderID]
	t.mu.Unlock()
	if !ok {
		return models.GeoPosition{}, 0, false
	}
	return a.Position()
}

// StopOrder tears down tracking state for one order.
func (t *Tracker) StopOrder(orderID string) {
	t.mu.Lock()
	a := t.anims[orderID]
	tr := t.trail[orderID]
	delete(t.anims, orderID)
	delete(t.trail, orderID)
	t.mu.Unlock()
	if a != nil {
		a.Stop()
	}
	if tr != nil {
		tr.Clear()
	}
}

// Close stops every live animator.
func (t *Tracker) Close() {
	t.mu.Lock()
	anims := t.anims
	t.anims = make(map[string]*Animator)
	t.trail = make(map[string]*Trail)
	t.mu.Unlock()
	for _, a := range anims {
		a.Stop()
	}
}
