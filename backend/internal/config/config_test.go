package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "ALLOWED_ORIGINS", "SWEEP_INTERVAL", "ROOM_RETENTION", "MAX_MESSAGE_BYTES", "MESSAGES_PER_SECOND", "RELAY_ADVERTISE", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("port=%d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.SweepInterval != 5*time.Minute || cfg.RoomRetention != 24*time.Hour {
		t.Fatalf("sweep=%v retention=%v", cfg.SweepInterval, cfg.RoomRetention)
	}
	if len(cfg.AllowedOrigins) != 0 || !cfg.OriginAllowed("https://anything.example") {
		t.Fatalf("expected every origin to be allowed by default")
	}
	if cfg.LogLevel != "info" || cfg.Advertise {
		t.Fatalf("logLevel=%q advertise=%v", cfg.LogLevel, cfg.Advertise)
	}
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "4000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example/")

	cfg, err := Load(Options{Port: 5000})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 5000 {
		t.Fatalf("port=%d, want 5000", cfg.Port)
	}
	if !cfg.OriginAllowed("https://b.example") {
		t.Fatalf("expected trailing slash to be ignored")
	}
	if cfg.OriginAllowed("https://c.example") {
		t.Fatalf("expected unlisted origin to be refused")
	}
}

func TestLoad_RejectsBadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SWEEP_INTERVAL", "soon")

	if _, err := Load(Options{}); err == nil {
		t.Fatalf("expected error for unparsable SWEEP_INTERVAL")
	}
}
