package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("SCHEDULER_QUEUE_SIZE")
	os.Unsetenv("SESSION_ON_TIME_LIMIT_MINUTES")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Scheduler.QueueSize != 256 {
		t.Errorf("expected default queue size 256, got %d", cfg.Scheduler.QueueSize)
	}
	if cfg.Session.OnTimeLimitMinutes != 30 {
		t.Errorf("expected default on-time limit 30, got %d", cfg.Session.OnTimeLimitMinutes)
	}
}

func TestLoad_EmbeddedPhases(t *testing.T) {
	cfg := Load()

	if len(cfg.Scheduler.Phases) != 6 {
		t.Fatalf("expected 6 phase buckets, got %d", len(cfg.Scheduler.Phases))
	}

	first := cfg.Scheduler.Phases[0]
	if first.FromMinutes != 0 || first.Rank != 1 || first.Threshold != 0.75 {
		t.Errorf("unexpected first phase: %+v", first)
	}
	if first.Workers != 4 || first.BudgetSeconds != 3 || first.Persist != "always" {
		t.Errorf("unexpected first phase tuning: %+v", first)
	}

	last := cfg.Scheduler.Phases[len(cfg.Scheduler.Phases)-1]
	if last.FromMinutes != 90 || last.Rank != 6 || last.Persist != "match_only" {
		t.Errorf("unexpected last phase: %+v", last)
	}

	// Buckets must be sorted so elapsed-time lookup can take the last
	// reached bucket.
	for i := 1; i < len(cfg.Scheduler.Phases); i++ {
		if cfg.Scheduler.Phases[i].FromMinutes <= cfg.Scheduler.Phases[i-1].FromMinutes {
			t.Errorf("phase buckets not sorted at index %d", i)
		}
	}
}

func TestEnvInt_Invalid(t *testing.T) {
	os.Setenv("SCHEDULER_QUEUE_SIZE", "not-a-number")
	defer os.Unsetenv("SCHEDULER_QUEUE_SIZE")

	cfg := Load()
	if cfg.Scheduler.QueueSize != 256 {
		t.Errorf("expected fallback to default for invalid env value, got %d", cfg.Scheduler.QueueSize)
	}
}
