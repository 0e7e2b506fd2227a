package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.MirrorNamespace != "triplog-sync" || cfg.MirrorRequestTimeout() != 3*time.Second {
		t.Fatalf("unexpected mirror defaults: %+v", cfg)
	}
	if cfg.SampleMinDistanceM != 35 || cfg.GapIntervalMs != 60000 || cfg.AgentSyncSchedule != "@every 1m" {
		t.Fatalf("unexpected sampling defaults: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("KV_PATH", "")
	t.Setenv("MIRROR_PING_INTERVAL_MS", "250")
	t.Setenv("SAMPLE_MIN_DISTANCE_M", "20.5")
	t.Setenv("GEOCODER_URL", "http://nominatim:8080")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.KVPath != "" {
		t.Fatalf("expected in-memory kv path")
	}
	if cfg.MirrorPingInterval() != 250*time.Millisecond {
		t.Fatalf("expected override ping interval, got %v", cfg.MirrorPingInterval())
	}
	if cfg.SampleMinDistanceM != 20.5 {
		t.Fatalf("expected override sample distance")
	}
	if cfg.GeocoderURL != "http://nominatim:8080" {
		t.Fatalf("expected override geocoder")
	}
}

func TestFallbacksForInvalidNumbers(t *testing.T) {
	cfg := Config{GapDistanceM: -1, OperatorPinMinLen: 0}
	cfg.applyFallbacks()
	if cfg.GapDistanceM != 500 || cfg.OperatorPinMinLen != 4 || cfg.GeocoderCacheTTL() != 24*time.Hour {
		t.Fatalf("unexpected fallbacks: %+v", cfg)
	}
}
