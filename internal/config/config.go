package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	MirrorTTL     time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	RouteEndpoint     string
	OrderAPIEndpoint  string
	MilestoneEndpoint string
	MilestoneKey      string

	DefaultSpeedMps float64
	AnimSteps       int
	FrameInterval   time.Duration
	TrailCapacity   int
	PollInterval    time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "scrappers_geo",
		MirrorTTL:       10 * time.Minute,
		KafkaTopic:      "scrapper-locations",
		DefaultSpeedMps: 8,
		AnimSteps:       60,
		FrameInterval:   16 * time.Millisecond,
		TrailCapacity:   50,
		PollInterval:    5 * time.Second,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setDurationFromEnv(&cfg.MirrorTTL, "MIRROR_TTL", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setStringFromEnv(&cfg.RouteEndpoint, "ROUTE_ENDPOINT")
	setStringFromEnv(&cfg.OrderAPIEndpoint, "ORDER_API_ENDPOINT")
	setStringFromEnv(&cfg.MilestoneEndpoint, "MILESTONE_ENDPOINT")
	cfg.MilestoneKey = os.Getenv("MILESTONE_KEY")

	setFloatFromEnv(&cfg.DefaultSpeedMps, "ROUTE_DEFAULT_SPEED_MPS", &errs)
	setIntFromEnv(&cfg.AnimSteps, "TRACK_ANIM_STEPS", &errs)
	setDurationFromEnv(&cfg.FrameInterval, "TRACK_FRAME_INTERVAL", &errs)
	setIntFromEnv(&cfg.TrailCapacity, "TRACK_TRAIL_CAPACITY", &errs)
	setDurationFromEnv(&cfg.PollInterval, "RECONCILE_POLL_INTERVAL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.AnimSteps <= 0 {
		errs = append(errs, fmt.Errorf("TRACK_ANIM_STEPS must be > 0"))
	}
	if cfg.TrailCapacity <= 0 {
		errs = append(errs, fmt.Errorf("TRACK_TRAIL_CAPACITY must be > 0"))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_POLL_INTERVAL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
