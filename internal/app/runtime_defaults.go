package app

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	defaultStorageKey       = "sql-editor-connections"
	defaultSnapshotSchedule = "@daily"
	defaultSweepSchedule    = "@hourly"
	defaultRateLimit        = 300
)

// ApplyRuntimeDefaults repairs settings that would otherwise break start-up, such as an
// empty storage key or an unparsable snapshot schedule. It returns the keys that were
// adjusted so callers can log them.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	adjusted := make(map[string]bool)

	if strings.TrimSpace(cfg.Storage.Key) == "" {
		cfg.Storage.Key = defaultStorageKey
		adjusted["storage.key"] = true
	}

	if cfg.Server.RateLimit.Enabled && cfg.Server.RateLimit.Requests <= 0 {
		cfg.Server.RateLimit.Requests = defaultRateLimit
		adjusted["server.rate_limit.requests"] = true
	}

	if cfg.Snapshots.Enabled {
		spec := strings.TrimSpace(cfg.Snapshots.Schedule)
		if spec == "" {
			cfg.Snapshots.Schedule = defaultSnapshotSchedule
			adjusted["snapshots.schedule"] = true
		} else if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("snapshots.schedule %q: %w", spec, err)
		}
	}

	if spec := strings.TrimSpace(cfg.Maintenance.SweepSchedule); spec == "" {
		cfg.Maintenance.SweepSchedule = defaultSweepSchedule
		adjusted["maintenance.sweep_schedule"] = true
	} else if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("maintenance.sweep_schedule %q: %w", spec, err)
	}

	if cfg.Snapshots.Retain < 0 {
		cfg.Snapshots.Retain = 0
		adjusted["snapshots.retain"] = true
	}

	return adjusted, nil
}
