package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9999
session:
  ack_timeout_ms: 750
flight_log:
  gzip: false
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Session.AckTimeout != 750*time.Millisecond {
		t.Errorf("Session.AckTimeout = %v, want 750ms", cfg.Session.AckTimeout)
	}
	if cfg.FlightLog.Gzip {
		t.Error("FlightLog.Gzip should be false per overlay")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	// Values not present in the file keep Default()'s values.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default 0.0.0.0", cfg.Server.Host)
	}
}

func TestLoadFileRejectsInvalidOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "server:\n  port: 999999\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("expected LoadFile to reject an out-of-range port")
	}
}

func TestLoadFileMissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("FLIGHTPATH_CONFIG_FILE", "")
	t.Setenv("FLIGHTPATH_PORT", "7070")
	t.Setenv("FLIGHTPATH_HOST", "127.0.0.1")
	t.Setenv("FLIGHTPATH_LOG_LEVEL", "warn")

	cfg := Load()

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}
