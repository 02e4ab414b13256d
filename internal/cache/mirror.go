package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/scrap-tracking/internal/models"
)

// Mirror is the best-effort local copy of assignment records, used only
// when the authoritative store read fails. Reads from here are never
// authoritative and callers must label them as cached.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewMirror(addr, password string, ttl time.Duration, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &Mirror{client: c, ttl: ttl, logger: logger}
}

func key(id string) string { return "assignment:mirror:" + id }

// Put mirrors the record with a TTL. Failures are logged and dropped;
// the mirror is resiliency, not a contract.
func (m *Mirror) Put(ctx context.Context, a *models.Assignment) {
	if m == nil || a == nil {
		return
	}
	b, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := m.client.Set(ctx, key(a.ID), b, m.ttl).Err(); err != nil {
		m.logger.Debug("mirror write failed", "assignment_id", a.ID, "error", err)
	}
}

// Get returns the mirrored record if present. The second return is a
// plain hit flag; a hit is still non-authoritative data.
func (m *Mirror) Get(ctx context.Context, id string) (*models.Assignment, bool) {
	if m == nil {
		return nil, false
	}
	raw, err := m.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var a models.Assignment
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, false
	}
	return &a, true
}
