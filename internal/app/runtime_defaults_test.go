package app

import (
	"strings"
	"testing"
)

func TestApplyRuntimeDefaultsFillsMissingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.RateLimit.Enabled = true
	cfg.Snapshots.Enabled = true
	cfg.Snapshots.Retain = -1

	adjusted, err := ApplyRuntimeDefaults(cfg)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}

	if cfg.Storage.Key != "sql-editor-connections" {
		t.Fatalf("expected default storage key, got %q", cfg.Storage.Key)
	}
	if cfg.Snapshots.Schedule != "@daily" {
		t.Fatalf("expected default schedule, got %q", cfg.Snapshots.Schedule)
	}
	if cfg.Server.RateLimit.Requests != 300 {
		t.Fatalf("expected default rate limit, got %d", cfg.Server.RateLimit.Requests)
	}
	if cfg.Maintenance.SweepSchedule != "@hourly" {
		t.Fatalf("expected default sweep schedule, got %q", cfg.Maintenance.SweepSchedule)
	}
	if cfg.Snapshots.Retain != 0 {
		t.Fatalf("expected retain to be clamped, got %d", cfg.Snapshots.Retain)
	}
	for _, key := range []string{"storage.key", "snapshots.schedule", "server.rate_limit.requests", "snapshots.retain", "maintenance.sweep_schedule"} {
		if !adjusted[key] {
			t.Fatalf("expected %s to be reported: %#v", key, adjusted)
		}
	}
}

func TestApplyRuntimeDefaultsPreservesExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.Key = "team-a"
	cfg.Snapshots.Enabled = true
	cfg.Snapshots.Schedule = "0 3 * * *"
	cfg.Maintenance.SweepSchedule = "*/15 * * * *"

	adjusted, err := ApplyRuntimeDefaults(cfg)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}
	if len(adjusted) != 0 {
		t.Fatalf("expected no keys adjusted, got %#v", adjusted)
	}
}

func TestApplyRuntimeDefaultsRejectsBadSchedule(t *testing.T) {
	cfg := &Config{}
	cfg.Snapshots.Enabled = true
	cfg.Snapshots.Schedule = "every tuesday"

	if _, err := ApplyRuntimeDefaults(cfg); err == nil || !strings.Contains(err.Error(), "snapshots.schedule") {
		t.Fatalf("expected schedule error, got %v", err)
	}
}

func TestApplyRuntimeDefaultsRejectsBadSweepSchedule(t *testing.T) {
	cfg := &Config{}
	cfg.Maintenance.SweepSchedule = "twice daily"

	if _, err := ApplyRuntimeDefaults(cfg); err == nil || !strings.Contains(err.Error(), "maintenance.sweep_schedule") {
		t.Fatalf("expected sweep schedule error, got %v", err)
	}
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	if err == nil || !strings.Contains(err.Error(), "config is nil") {
		t.Fatalf("expected nil config error, got %v", err)
	}
}
