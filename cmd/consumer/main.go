package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/scrap-tracking/internal/geo"
	"github.com/example/scrap-tracking/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total scrapper location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

type consumerConfig struct {
	brokers     []string
	topic       string
	group       string
	redisAddr   string
	geoKey      string
	metricsAddr string
}

func loadConsumerConfig() consumerConfig {
	cfg := consumerConfig{
		topic:     envOr("KAFKA_TOPIC", "scrapper-locations"),
		group:     envOr("KAFKA_GROUP", "scrap-tracking-consumer"),
		redisAddr: envOr("REDIS_ADDR", "localhost:6379"),
		geoKey:    envOr("REDIS_GEO_KEY", "scrappers_geo"),
	}
	raw := os.Getenv("KAFKA_BROKERS")
	if raw == "" {
		raw = os.Getenv("KAFKA_BROKER")
	}
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.brokers = append(cfg.brokers, b)
		}
	}
	if len(cfg.brokers) == 0 {
		cfg.brokers = []string{"localhost:9092"}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := loadConsumerConfig()
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	rc := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	sink := &redisSink{client: rc, geoKey: cfg.geoKey}

	go serveMetrics(cfg.metricsAddr, rc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.brokers,
		Topic:    cfg.topic,
		GroupID:  cfg.group,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = reader.Close()
		_ = rc.Close()
	}()

	log.Printf("location consumer started topic=%s group=%s brokers=%v", cfg.topic, cfg.group, cfg.brokers)
	consume(ctx, reader, sink)
	log.Println("location consumer stopped")
}

// serveMetrics exposes prometheus metrics plus liveness and a readiness
// check gated on redis connectivity.
func serveMetrics(addr string, rc *redis.Client) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := rc.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis not ready", 503)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	log.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics server exited: %v", err)
	}
}

func consume(ctx context.Context, reader *kafka.Reader, sink positionSink) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("read failed, retrying in %s: %v", backoff, err)
			time.Sleep(backoff)
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		var u models.LocationUpdate
		if err := json.Unmarshal(m.Value, &u); err != nil || u.ScrapperID == "" {
			msgsInvalid.Inc()
			log.Printf("dropping undecodable location message: %v", err)
			continue
		}

		if err := storeWithRetry(ctx, sink, &u, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			log.Printf("position write failed scrapper=%s: %v", u.ScrapperID, err)
			continue
		}
		redisUpdates.Inc()
	}
}

// positionSink is the slice of redis the consumer writes through,
// narrow enough to fake in tests.
type positionSink interface {
	GeoAdd(ctx context.Context, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisSink struct {
	client *redis.Client
	geoKey string
}

func (r *redisSink) GeoAdd(ctx context.Context, loc *redis.GeoLocation) error {
	return r.client.GeoAdd(ctx, r.geoKey, loc).Err()
}

func (r *redisSink) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return r.client.HSet(ctx, key, values).Err()
}

// storeWithRetry writes the fix to the shared index the API server
// reads. The meta hash uses the geo package layout, so entries written
// here and entries written in-process look identical to readers.
func storeWithRetry(ctx context.Context, sink positionSink, u *models.LocationUpdate, attempts int, delay time.Duration) error {
	write := func() error {
		loc := &redis.GeoLocation{Longitude: u.Position.Lng, Latitude: u.Position.Lat, Name: u.ScrapperID}
		if err := sink.GeoAdd(ctx, loc); err != nil {
			return err
		}
		return sink.HSet(ctx, geo.MetaKey(u.ScrapperID), geo.MetaFields(*u))
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = write(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
