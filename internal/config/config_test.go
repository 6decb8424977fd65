package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "POLL_INTERVAL_SECS", "WORKER_NAME", "WORKER_REPLICAS"} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/backtestq")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.PollIntervalSecs != 1.0 {
		t.Errorf("PollIntervalSecs = %v, want 1.0", cfg.PollIntervalSecs)
	}
	if cfg.WorkerName != "worker-1" {
		t.Errorf("WorkerName = %q, want worker-1", cfg.WorkerName)
	}
	if cfg.Replicas != 1 {
		t.Errorf("Replicas = %d, want 1", cfg.Replicas)
	}
}

func TestLoadEnvOverridesFileAndDefaults(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"database_url": "postgres://file", "poll_interval_secs": 5, "worker_name": "from-file"}`), 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("DATABASE_URL", "postgres://env")
	os.Setenv("WORKER_NAME", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.DatabaseURL != "postgres://env" {
		t.Errorf("DatabaseURL = %q, want env override to win", cfg.DatabaseURL)
	}
	if cfg.WorkerName != "from-env" {
		t.Errorf("WorkerName = %q, want env override to win", cfg.WorkerName)
	}
	if cfg.PollIntervalSecs != 5 {
		t.Errorf("PollIntervalSecs = %v, want file value 5 to survive (no env override)", cfg.PollIntervalSecs)
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/backtestq")

	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json")); err != nil {
		t.Fatalf("Load() = %v, want a missing config file to be tolerated", err)
	}
}

func TestValidateRejectsMissingDatabaseURL(t *testing.T) {
	clearEnv(t)
	if _, err := Load(""); err == nil {
		t.Fatal("expected Load() to fail without DATABASE_URL")
	}
}

func TestValidateRejectsNonPositivePollInterval(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/backtestq")
	os.Setenv("POLL_INTERVAL_SECS", "0")

	if _, err := Load(""); err == nil {
		t.Fatal("expected Load() to fail for a non-positive poll interval")
	}
}
