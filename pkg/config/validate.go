package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// set defaults, fail fast on critical errors
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	cfg.ApplyDefaults()

	if p := eff.DBPath; p == "" {
		return fmt.Errorf("database path is empty: set --db flag, CHATZALO_DB_PATH env, or server.db_path in config")
	}
	if strings.TrimSpace(cfg.Security.JWTSecret) == "" {
		return fmt.Errorf("security.jwt_secret is empty: set CHATZALO_JWT_SECRET or security.jwt_secret")
	}
	if len(cfg.Security.JWTSecret) < 16 {
		return fmt.Errorf("security.jwt_secret must be at least 16 bytes")
	}
	if cfg.Server.Port == cfg.Server.RealtimePort {
		return fmt.Errorf("server.port and server.realtime_port must differ (both %d)", cfg.Server.Port)
	}
	if !strings.HasPrefix(cfg.Realtime.Path, "/") {
		return fmt.Errorf("realtime.path must start with '/': %q", cfg.Realtime.Path)
	}
	if cfg.Messages.RecallWindow.Duration() < 0 {
		return fmt.Errorf("messages.recall_window must not be negative")
	}
	if pct := cfg.Sensor.DiskHighPct; pct < 1 || pct > 100 {
		return fmt.Errorf("sensor.disk_high_pct must be within 1..100, got %d", pct)
	}

	ret := cfg.Retention
	if ret.Enabled {
		gron := gronx.New()
		if !gron.IsValid(ret.Cron) {
			return fmt.Errorf("invalid retention.cron: not a valid cron expression")
		}
		if _, err := ParsePeriod(ret.Period); err != nil {
			return fmt.Errorf("invalid retention.period: %w", err)
		}
	}

	return nil
}

// ParsePeriod accepts "30d" style day counts or Go durations.
func ParsePeriod(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty period")
	}
	if strings.HasSuffix(raw, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("period must be positive: %q", raw)
	}
	return d, nil
}
