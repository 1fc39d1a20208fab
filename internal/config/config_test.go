package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := defaults()
	original.DataDir = "/tmp/test-data"
	original.LogLevel = "debug"
	original.Sessions.TTL = "45m"
	original.Sessions.MaxPerOwner = 7
	original.History.MaxRecords = 9
	original.Transcript.Budget = 12000
	original.Monitor.Targets = []string{"api-cluster", "db-cluster"}

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file does not exist after Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.LogLevel != original.LogLevel {
		t.Errorf("LogLevel mismatch: %v != %v", loaded.LogLevel, original.LogLevel)
	}
	if loaded.Sessions.MaxPerOwner != 7 {
		t.Errorf("MaxPerOwner mismatch: %v", loaded.Sessions.MaxPerOwner)
	}
	if loaded.SessionTTL() != 45*time.Minute {
		t.Errorf("SessionTTL mismatch: %v", loaded.SessionTTL())
	}
	if loaded.History.MaxRecords != 9 {
		t.Errorf("MaxRecords mismatch: %v", loaded.History.MaxRecords)
	}
	if len(loaded.Monitor.Targets) != 2 {
		t.Errorf("Targets mismatch: %v", loaded.Monitor.Targets)
	}
}

func TestLoadWritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected defaults written to %s: %v", path, err)
	}
	if cfg.Sessions.MaxPerOwner != 5 {
		t.Errorf("expected default max per owner 5, got %d", cfg.Sessions.MaxPerOwner)
	}
	if cfg.SessionTTL() != 30*time.Minute {
		t.Errorf("expected default TTL 30m, got %v", cfg.SessionTTL())
	}
	if cfg.HistoryMaxAge() != 24*time.Hour {
		t.Errorf("expected default history age 24h, got %v", cfg.HistoryMaxAge())
	}
	if cfg.History.TrendWindow != 3 || cfg.History.TrendThreshold != 2 {
		t.Errorf("expected 2-of-3 trend defaults, got %d of %d",
			cfg.History.TrendThreshold, cfg.History.TrendWindow)
	}
}

func TestDurationFallback(t *testing.T) {
	if got := Duration("", time.Minute); got != time.Minute {
		t.Errorf("empty value: expected fallback, got %v", got)
	}
	if got := Duration("not-a-duration", time.Minute); got != time.Minute {
		t.Errorf("malformed value: expected fallback, got %v", got)
	}
	if got := Duration("-5m", time.Minute); got != time.Minute {
		t.Errorf("negative value: expected fallback, got %v", got)
	}
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
}

func TestGetSetValue(t *testing.T) {
	path := tempConfigPath(t)
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "sessions.max_per_owner", "9"); err != nil {
		t.Fatal(err)
	}
	val, err := GetValue(path, "sessions.max_per_owner")
	if err != nil {
		t.Fatal(err)
	}
	if val != 9.0 {
		t.Errorf("expected 9, got %v", val)
	}

	if err := SetValue(path, "sessions.ttl", "1h"); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SessionTTL() != time.Hour {
		t.Errorf("expected 1h TTL, got %v", cfg.SessionTTL())
	}

	if err := SetValue(path, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := GetValue(path, "no.such.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}
