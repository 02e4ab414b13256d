package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/scrap-tracking/internal/models"
)

// RedisPositions keeps last-known scrapper positions in Redis GEO plus a
// small metadata hash, so the consumer and the API server share state.
type RedisPositions struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisPositions(addr, password, key string) *RedisPositions {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisPositions{client: c, key: key, ctx: context.Background()}
}

func (r *RedisPositions) Upsert(u models.LocationUpdate) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: u.Position.Lng, Latitude: u.Position.Lat, Name: u.ScrapperID}).Result()
	_ = r.client.HSet(r.ctx, MetaKey(u.ScrapperID), MetaFields(u)).Err()
}

func (r *RedisPositions) Last(scrapperID string) (models.LocationUpdate, bool) {
	pos, err := r.client.GeoPos(r.ctx, r.key, scrapperID).Result()
	if err != nil || len(pos) == 0 || pos[0] == nil {
		return models.LocationUpdate{}, false
	}
	u := models.LocationUpdate{
		ScrapperID: scrapperID,
		Position:   models.GeoPosition{Lat: pos[0].Latitude, Lng: pos[0].Longitude},
	}
	if m, err := r.client.HGetAll(r.ctx, MetaKey(scrapperID)).Result(); err == nil {
		u.OrderID = m["order_id"]
		if v, ok := m["heading"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				u.Heading = f
			}
		}
		if v, ok := m["captured"]; ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				u.CapturedAt = t
			}
		}
	}
	return u, true
}

// MetaKey and MetaFields define the shared hash layout. Every writer of
// the index, this package or the kafka consumer, must produce entries
// that Last can read back.
func MetaKey(id string) string { return "scrapper:meta:" + id }

func MetaFields(u models.LocationUpdate) map[string]interface{} {
	captured := u.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}
	return map[string]interface{}{
		"order_id": u.OrderID,
		"heading":  strconv.FormatFloat(u.Heading, 'f', -1, 64),
		"captured": captured.UTC().Format(time.RFC3339),
	}
}
