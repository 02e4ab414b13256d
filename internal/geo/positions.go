package geo

import (
	"sync"
	"time"

	"github.com/example/scrap-tracking/internal/models"
)

// Positions is the minimal last-known-position interface used by the
// handlers and the consumer.
type Positions interface {
	Upsert(u models.LocationUpdate)
	Last(scrapperID string) (models.LocationUpdate, bool)
}

type Index struct {
	mu   sync.RWMutex
	last map[string]models.LocationUpdate
}

func NewIndex() *Index {
	return &Index{last: make(map[string]models.LocationUpdate)}
}

func (g *Index) Upsert(u models.LocationUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u.CapturedAt.IsZero() {
		u.CapturedAt = time.Now()
	}
	g.last[u.ScrapperID] = u
}

func (g *Index) Last(scrapperID string) (models.LocationUpdate, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	u, ok := g.last[scrapperID]
	return u, ok
}
