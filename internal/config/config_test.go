package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("TRIAGE_DELAY_MS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Triage.Delay() != 2*time.Second {
		t.Errorf("Delay = %v, want 2s", cfg.Triage.Delay())
	}
	if cfg.Triage.SolutionMaxLength != 1200 {
		t.Errorf("SolutionMaxLength = %d, want 1200", cfg.Triage.SolutionMaxLength)
	}
	if cfg.Triage.RecentTicketsForContext != 5 {
		t.Errorf("RecentTicketsForContext = %d, want 5", cfg.Triage.RecentTicketsForContext)
	}
	if cfg.Postgres.DSN != "" {
		t.Errorf("DSN = %q, want empty", cfg.Postgres.DSN)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("TRIAGE_WORKERS", "4")
	t.Setenv("AI_TIMEOUT_SECONDS", "7")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.App.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Addr = %q", got)
	}
	if cfg.Triage.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Triage.Workers)
	}
	if cfg.AI.Timeout() != 7*time.Second {
		t.Errorf("AI timeout = %v", cfg.AI.Timeout())
	}
	if cfg.Postgres.RunMigrations {
		t.Error("RunMigrations = true, want false")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric REDIS_DB")
	}

	t.Setenv("REDIS_DB", "0")
	t.Setenv("TRIAGE_WORKERS", "0")
	if _, err := Load(); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestGetEnvAsInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	if got := getEnvAsInt("SOME_INT", 3); got != 3 {
		t.Errorf("getEnvAsInt = %d, want 3", got)
	}
}
