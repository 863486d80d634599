package server

import (
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Port != ":8080" {
		t.Errorf("Port = %q, want :8080", cfg.Port)
	}
	if !cfg.IsDevelopment() {
		t.Error("default env should be development")
	}
	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize = %d, want positive", cfg.MaxMessageSize)
	}
	want := []string{"General", "Gaming", "Technical"}
	if !reflect.DeepEqual(cfg.SeedRooms, want) {
		t.Errorf("SeedRooms = %v, want %v", cfg.SeedRooms, want)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, https://admin.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("SEED_ROOMS", "Lobby,  Support ")
	t.Setenv("SHUTDOWN_TIMEOUT", "5")

	cfg := Load()

	if cfg.Port != ":9090" {
		t.Errorf("Port = %q, want :9090 (prefix normalized)", cfg.Port)
	}
	if cfg.IsDevelopment() {
		t.Error("ENV=production should not be development")
	}
	wantOrigins := []string{"https://chat.example.com", "https://admin.example.com"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, wantOrigins) {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, wantOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("MaxMessageSize = %d, want 1024", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 10 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	wantRooms := []string{"Lobby", "Support"}
	if !reflect.DeepEqual(cfg.SeedRooms, wantRooms) {
		t.Errorf("SeedRooms = %v, want %v", cfg.SeedRooms, wantRooms)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "0")

	cfg := Load()
	defaults := DefaultConfig()

	if cfg.MaxMessageSize != defaults.MaxMessageSize {
		t.Errorf("MaxMessageSize = %d, want default %d", cfg.MaxMessageSize, defaults.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != defaults.RateLimit.Burst {
		t.Errorf("Burst = %d, want default %d", cfg.RateLimit.Burst, defaults.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != defaults.RateLimit.RefillInterval {
		t.Errorf("RefillInterval = %v, want default %v", cfg.RateLimit.RefillInterval, defaults.RateLimit.RefillInterval)
	}
}

func TestSanitizedRepairsZeroValues(t *testing.T) {
	cfg := Config{}.sanitized()

	if cfg.Port != ":8080" {
		t.Errorf("Port = %q, want :8080", cfg.Port)
	}
	if cfg.MaxMessageSize <= 0 || cfg.RateLimit.Burst <= 0 || cfg.RateLimit.RefillInterval <= 0 {
		t.Errorf("sanitized config carries zero values: %+v", cfg)
	}
	if cfg.ShutdownTimeout <= 0 {
		t.Errorf("ShutdownTimeout = %v, want positive", cfg.ShutdownTimeout)
	}
}
