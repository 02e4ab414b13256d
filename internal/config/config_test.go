package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("defaults must load cleanly: %v", err)
	}
	if cfg.AnimSteps != 60 || cfg.TrailCapacity != 50 {
		t.Fatalf("unexpected tracking defaults: %+v", cfg)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("poll interval default: %s", cfg.PollInterval)
	}
	if cfg.KafkaTopic != "scrapper-locations" {
		t.Fatalf("kafka topic default: %s", cfg.KafkaTopic)
	}
}

func TestLoadServerConfigOverridesAndValidation(t *testing.T) {
	t.Setenv("TRACK_ANIM_STEPS", "30")
	t.Setenv("RECONCILE_POLL_INTERVAL", "2s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AnimSteps != 30 || cfg.PollInterval != 2*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers: %v", cfg.KafkaBrokers)
	}

	t.Setenv("TRACK_ANIM_STEPS", "0")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("zero anim steps must fail validation")
	}
}
