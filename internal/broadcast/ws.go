package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/scrap-tracking/internal/models"
	"github.com/example/scrap-tracking/internal/observability"
)

// WSSession is one connected observer (the counterpart party's map).
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(u models.LocationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(u)
}

// WSRegistry fans location updates out to every observer watching an
// order. Failed sessions are dropped on the next write.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]map[*WSSession]struct{})}
}

func (r *WSRegistry) Add(orderID string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	set, ok := r.sessions[orderID]
	if !ok {
		set = make(map[*WSSession]struct{})
		r.sessions[orderID] = set
	}
	set[s] = struct{}{}
	r.mu.Unlock()
	observability.ObserversConnected.Inc()
	return s
}

func (r *WSRegistry) Remove(orderID string, s *WSSession) {
	r.mu.Lock()
	if set, ok := r.sessions[orderID]; ok {
		if _, present := set[s]; present {
			delete(set, s)
			observability.ObserversConnected.Dec()
		}
		if len(set) == 0 {
			delete(r.sessions, orderID)
		}
	}
	r.mu.Unlock()
	_ = s.conn.Close()
}

func (r *WSRegistry) Send(orderID string, pos models.GeoPosition, heading float64) {
	u := models.LocationUpdate{OrderID: orderID, Position: pos, Heading: heading, CapturedAt: time.Now()}

	r.mu.RLock()
	set := r.sessions[orderID]
	targets := make([]*WSSession, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		if err := s.send(u); err != nil {
			r.Remove(orderID, s)
			continue
		}
		observability.BroadcastsTotal.WithLabelValues("ws").Inc()
	}
}
