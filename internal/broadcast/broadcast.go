package broadcast

import (
	"github.com/example/scrap-tracking/internal/models"
)

// Broadcaster delivers a mover's position to interested observers.
// Delivery is best-effort telemetry: implementations must not block the
// caller and must swallow channel failures. Throttling is the caller's
// job (the animator sends roughly every 10th frame plus on settle).
type Broadcaster interface {
	Send(orderID string, pos models.GeoPosition, heading float64)
}

// Fanout sends to every configured channel.
type Fanout []Broadcaster

func (f Fanout) Send(orderID string, pos models.GeoPosition, heading float64) {
	for _, b := range f {
		if b != nil {
			b.Send(orderID, pos, heading)
		}
	}
}
