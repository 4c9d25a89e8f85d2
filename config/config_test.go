package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9090
  include_end_date: true
database:
  driver: Postgres
  dsn: postgres://localhost/elprice
energy_price:
  area: SE3
  run_at: "0 * * * *"
  lookback_hours: 24
backfill:
  enabled: false
  delay: 5s
  years: 2
cache:
  size: 0
  ttl: 1m
logging:
  console_level: debug
`)
	t.Setenv("ENERGY_PRICE_AREA", "SE4")

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	t.Run("Api", func(t *testing.T) {
		if config.Api.Port != 9090 {
			t.Errorf("Expected port 9090, got %d", config.Api.Port)
		}
		if !config.Api.IncludeEndDate {
			t.Errorf("Expected include_end_date to be true")
		}
	})

	t.Run("Database", func(t *testing.T) {
		if config.Database.GetDriver() != "postgres" {
			t.Errorf("Expected driver postgres, got %s", config.Database.GetDriver())
		}
		if config.Database.Dsn != "postgres://localhost/elprice" {
			t.Errorf("Unexpected dsn %s", config.Database.Dsn)
		}
		if config.Database.GetBackupRetentionDays() != 90 {
			t.Errorf("Expected default backup retention 90, got %d", config.Database.GetBackupRetentionDays())
		}
	})

	t.Run("Energy Price", func(t *testing.T) {
		if config.EnergyPrice.Area != "SE4" {
			t.Errorf("Expected area from env SE4, got %s", config.EnergyPrice.Area)
		}
		if config.EnergyPrice.GetRunAt() != "0 * * * *" {
			t.Errorf("Unexpected run_at %s", config.EnergyPrice.GetRunAt())
		}
		if config.EnergyPrice.GetLookbackHours() != 24 {
			t.Errorf("Expected lookback 24, got %d", config.EnergyPrice.GetLookbackHours())
		}
		if config.EnergyPrice.GetTimeout() != 30*time.Second {
			t.Errorf("Expected default timeout 30s, got %s", config.EnergyPrice.GetTimeout())
		}
	})

	t.Run("Backfill", func(t *testing.T) {
		if config.Backfill.IsEnabled() {
			t.Errorf("Expected backfill to be disabled")
		}
		if config.Backfill.GetDelay() != 5*time.Second {
			t.Errorf("Expected delay 5s, got %s", config.Backfill.GetDelay())
		}
		if config.Backfill.GetYears() != 2 {
			t.Errorf("Expected 2 years, got %d", config.Backfill.GetYears())
		}
	})

	t.Run("Cache", func(t *testing.T) {
		if config.Cache.GetSize() != 0 {
			t.Errorf("Expected cache size 0, got %d", config.Cache.GetSize())
		}
		if config.Cache.GetTtl() != time.Minute {
			t.Errorf("Expected ttl 1m, got %s", config.Cache.GetTtl())
		}
	})

	t.Run("Logging", func(t *testing.T) {
		if config.Logging.GetConsoleLevel() != slog.LevelDebug {
			t.Errorf("Expected console level debug, got %s", config.Logging.GetConsoleLevel())
		}
		if config.Logging.GetDbLevel() != slog.LevelInfo {
			t.Errorf("Expected default db level info, got %s", config.Logging.GetDbLevel())
		}
		if config.Logging.GetDbMaxEntries() != 10000 {
			t.Errorf("Expected default max entries 10000, got %d", config.Logging.GetDbMaxEntries())
		}
	})
}

func TestDefaults(t *testing.T) {
	var c AppConfig
	if c.Database.GetDriver() != "sqlite" {
		t.Errorf("Expected default driver sqlite, got %s", c.Database.GetDriver())
	}
	if c.EnergyPrice.GetRunAt() != "@every 1h" {
		t.Errorf("Expected default run_at, got %s", c.EnergyPrice.GetRunAt())
	}
	if c.EnergyPrice.GetLookbackHours() != 48 {
		t.Errorf("Expected default lookback 48, got %d", c.EnergyPrice.GetLookbackHours())
	}
	if !c.Backfill.IsEnabled() || c.Backfill.GetDelay() != 3*time.Minute || c.Backfill.GetYears() != 10 {
		t.Errorf("Unexpected backfill defaults %+v", c.Backfill)
	}
	if c.Cache.GetSize() != 128 || c.Cache.GetTtl() != 10*time.Minute {
		t.Errorf("Unexpected cache defaults %+v", c.Cache)
	}
	if c.Mqtt.GetTopic() != "elprice/events" {
		t.Errorf("Unexpected default topic %s", c.Mqtt.GetTopic())
	}
	if c.Mqtt.GetEncoding() != "json" {
		t.Errorf("Unexpected default encoding %s", c.Mqtt.GetEncoding())
	}
	bad := "not a duration"
	c.Backfill.Delay = &bad
	if c.Backfill.GetDelay() != 3*time.Minute {
		t.Errorf("Expected fallback delay for invalid input, got %s", c.Backfill.GetDelay())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Expected error for missing config file")
	}
}
