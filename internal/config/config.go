// Package config provides worker configuration management. All
// configuration is loaded from an optional JSON file and environment
// variables; no configuration is hardcoded in engine or strategy logic.
//
// Grounded on the teacher's internal/config.Load/Validate shape (JSON file
// of defaults, environment-variable overrides, fail-fast Validate), scoped
// down from the teacher's broker/risk/webhook settings to what a queue
// worker needs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config holds worker process configuration. Loaded once at startup and
// passed as read-only to the worker loop.
type Config struct {
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `json:"database_url"`

	// PollIntervalSecs is how long the worker sleeps between run_once
	// attempts when the queue is empty.
	PollIntervalSecs float64 `json:"poll_interval_secs"`

	// WorkerName identifies this worker in logs and run_logs rows.
	WorkerName string `json:"worker_name"`

	// Replicas is how many independent named worker loops cmd/worker runs
	// concurrently (one goroutine per replica).
	Replicas int `json:"replicas"`
}

// defaults mirrors spec.md §6's stated default for POLL_INTERVAL_SECS.
func defaults() Config {
	return Config{
		PollIntervalSecs: 1.0,
		WorkerName:       "worker-1",
		Replicas:         1,
	}
}

// Load reads an optional JSON file of defaults at path (skipped entirely if
// path is empty or the file doesn't exist), then applies environment
// variable overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read file %s: %w", path, err)
		}
		if err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse json: %w", err)
			}
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("POLL_INTERVAL_SECS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("config: parse POLL_INTERVAL_SECS: %w", err)
		}
		cfg.PollIntervalSecs = f
	}
	if v := os.Getenv("WORKER_NAME"); v != "" {
		cfg.WorkerName = v
	}
	if v := os.Getenv("WORKER_REPLICAS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: parse WORKER_REPLICAS: %w", err)
		}
		cfg.Replicas = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.PollIntervalSecs <= 0 {
		return fmt.Errorf("poll_interval_secs must be positive, got %f", c.PollIntervalSecs)
	}
	if c.WorkerName == "" {
		return fmt.Errorf("worker_name is required")
	}
	if c.Replicas <= 0 {
		return fmt.Errorf("replicas must be positive, got %d", c.Replicas)
	}
	return nil
}
