package track

import (
	"math"
	"sync"
	"time"

	"github.com/example/scrap-tracking/internal/geo"
	"github.com/example/scrap-tracking/internal/models"
)

const (
	// DefaultSteps matches one smoothed sweep per incoming GPS fix.
	DefaultSteps = 60
	// DefaultFrameInterval approximates a display refresh cadence.
	DefaultFrameInterval = 16 * time.Millisecond

	trailEvery     = 5
	broadcastEvery = 10
)

// Broadcaster is the sink for throttled position fan-out. Implementations
// must not block and must swallow delivery failures.
type Broadcaster interface {
	Send(orderID string, pos models.GeoPosition, heading float64)
}

// Animator smooths discrete position fixes for one tracked order into an
// ease-out sweep of intermediate positions. A new target cancels any
// in-flight sweep and restarts from the last rendered position, so
// updates can never queue up behind each other.
type Animator struct {
	orderID string
	steps   int
	frame   time.Duration
	trail   *Trail
	sink    Broadcaster

	mu      sync.Mutex
	gen     uint64
	pos     *models.GeoPosition
	heading float64
	stopped bool
	stop    chan struct{}
}

func NewAnimator(orderID string, steps int, frame time.Duration, trail *Trail, sink Broadcaster) *Animator {
	if steps <= 0 {
		steps = DefaultSteps
	}
	if frame <= 0 {
		frame = DefaultFrameInterval
	}
	return &Animator{
		orderID: orderID,
		steps:   steps,
		frame:   frame,
		trail:   trail,
		sink:    sink,
		stop:    make(chan struct{}),
	}
}

// SetTarget feeds the next GPS fix. With no previous position, or an
// identical one, the animator settles immediately and the heading is
// left untouched.
func (a *Animator) SetTarget(next models.GeoPosition) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.gen++
	gen := a.gen
	prev := a.pos

	if prev == nil || geo.Equal(*prev, next) {
		p := next
		a.pos = &p
		heading := a.heading
		a.mu.Unlock()
		a.broadcast(next, heading)
		return
	}

	start := *prev
	heading := geo.Heading(start, next)
	a.heading = heading
	a.mu.Unlock()

	go a.run(gen, start, next, heading)
}

// Position returns the last rendered position and heading.
func (a *Animator) Position() (models.GeoPosition, float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pos == nil {
		return models.GeoPosition{}, 0, false
	}
	return *a.pos, a.heading, true
}

// Stop tears the animator down; any in-flight sweep exits silently.
func (a *Animator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	a.gen++
	close(a.stop)
}

func (a *Animator) run(gen uint64, start, next models.GeoPosition, heading float64) {
	ticker := time.NewTicker(a.frame)
	defer ticker.Stop()

	for i := 0; i < a.steps; i++ {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
		}

		a.mu.Lock()
		if gen != a.gen {
			a.mu.Unlock()
			return
		}
		progress := float64(i) / float64(a.steps)
		eased := 1 - math.Pow(1-progress, 3)
		p := geo.Lerp(start, next, eased)
		a.pos = &p
		a.mu.Unlock()

		if a.trail != nil && i%trailEvery == 0 {
			a.trail.Append(models.LiveTrackSample{Position: p, Heading: heading, CapturedAt: time.Now()})
		}
		if i%broadcastEvery == 0 {
			a.broadcast(p, heading)
		}
	}

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	p := next
	a.pos = &p
	a.mu.Unlock()
	a.broadcast(next, heading)
}

func (a *Animator) broadcast(pos models.GeoPosition, heading float64) {
	if a.sink == nil {
		return
	}
	a.sink.Send(a.orderID, pos, heading)
}
