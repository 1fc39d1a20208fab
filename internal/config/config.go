package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the process configuration, stored as JSON. Durations are
// plain strings ("30m", "24h") parsed on access.
type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Sessions struct {
		TTL           string `json:"ttl"`
		MaxPerOwner   int    `json:"max_per_owner"`
		SweepInterval string `json:"sweep_interval"`
	} `json:"sessions"`
	History struct {
		MaxRecords     int    `json:"max_records"`
		MaxAge         string `json:"max_age"`
		TrendWindow    int    `json:"trend_window"`
		TrendThreshold int    `json:"trend_threshold"`
	} `json:"history"`
	Transcript struct {
		Budget           int      `json:"budget"`
		PriorityKeywords []string `json:"priority_keywords"`
		RecentEntries    int      `json:"recent_entries"`
		MaxEntries       int      `json:"max_entries"`
		TokenizerModel   string   `json:"tokenizer_model"`
	} `json:"transcript"`
	Monitor struct {
		Schedule      string   `json:"schedule"`
		Targets       []string `json:"targets"`
		MaxConcurrent int      `json:"max_concurrent"`
	} `json:"monitor"`
}

// Load reads the config file, writing defaults first if it does not
// exist. Environment variables take highest precedence.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if dataDir := os.Getenv("OPSWATCH_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level := os.Getenv("OPSWATCH_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".opswatch"),
		LogLevel: "info",
	}
	cfg.Sessions.TTL = "30m"
	cfg.Sessions.MaxPerOwner = 5
	cfg.Sessions.SweepInterval = "5m"
	cfg.History.MaxRecords = 5
	cfg.History.MaxAge = "24h"
	cfg.History.TrendWindow = 3
	cfg.History.TrendThreshold = 2
	cfg.Transcript.Budget = 8000
	cfg.Transcript.PriorityKeywords = []string{"error", "critical", "crashloop", "oom"}
	cfg.Transcript.RecentEntries = 10
	cfg.Transcript.MaxEntries = 50
	cfg.Monitor.Schedule = "*/30 * * * *"
	cfg.Monitor.MaxConcurrent = 2
	return cfg
}

// Save writes the config as indented JSON via a temp file and rename.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Duration parses a duration field, returning fallback when the field
// is empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SessionTTL returns the parsed session TTL.
func (c *Config) SessionTTL() time.Duration {
	return Duration(c.Sessions.TTL, 30*time.Minute)
}

// SweepInterval returns the parsed sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return Duration(c.Sessions.SweepInterval, 5*time.Minute)
}

// HistoryMaxAge returns the parsed history age horizon.
func (c *Config) HistoryMaxAge() time.Duration {
	return Duration(c.History.MaxAge, 24*time.Hour)
}
