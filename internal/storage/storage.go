// Package storage is the external schema adapter: a thin mapping between
// in-memory run records and their persistent row layout.
//
// Grounded on the teacher's internal/storage.Store interface shape (a small
// interface of verbs, one Postgres implementation) but the verbs themselves
// come from worker.py's two-transaction run lifecycle rather than the
// teacher's candle/trade/signal CRUD surface.
package storage

import (
	"context"
	"time"

	"github.com/nitinkhare/backtestq/internal/bardata"
	"github.com/nitinkhare/backtestq/internal/metrics"
)

// RunStatus mirrors the runs.status check constraint.
type RunStatus string

const (
	StatusQueued    RunStatus = "QUEUED"
	StatusRunning   RunStatus = "RUNNING"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
)

// RunConfig is the run's immutable inputs, decoded from the runs.config_json
// column.
type RunConfig struct {
	Symbols           []string
	PortfolioID       *string
	StartDate         time.Time
	EndDate           time.Time
	StartingCashPaise int64
	FeeBps            int64
	SlippageBps       int64
	FillRule          string
	StrategyName      string
}

// ClaimedRun is everything the worker needs to execute a run after
// claiming it.
type ClaimedRun struct {
	RunID  string
	Config RunConfig
}

// Store is the persistence surface the worker and loader depend on.
type Store interface {
	// ClaimNextRun atomically selects and claims the oldest QUEUED run
	// (SELECT ... FOR UPDATE SKIP LOCKED), marks it RUNNING with
	// started_at = now, and returns it. ok is false when no run is queued.
	ClaimNextRun(ctx context.Context, workerName string) (run ClaimedRun, ok bool, err error)

	// ResolveSymbols expands cfg's symbols or portfolio_id into a concrete
	// ticker list and a ticker -> symbol_id mapping.
	ResolveSymbols(ctx context.Context, cfg RunConfig) (tickers []string, symbolIDs map[string]string, err error)

	// LoadBars fetches daily bars for tickers over [start, end]. Implements
	// loader.Source.
	LoadBars(ctx context.Context, tickers []string, start, end time.Time) ([]bardata.Bar, map[string]string, error)

	// PersistResults idempotently replaces the run's derivative rows
	// (deleting any existing equity/fills/metrics for runID first) and
	// marks the run COMPLETED with finished_at = now.
	PersistResults(ctx context.Context, runID string, symbolIDs map[string]string, equity []metrics.EquityPoint, fills []metrics.Fill, m metrics.Metrics) error

	// MarkFailed transitions runID to FAILED with a truncated error message
	// (<=10000 chars) and finished_at = now, in a fresh transaction — used
	// after a run's primary transaction has already failed or rolled back.
	MarkFailed(ctx context.Context, runID string, errText string) error

	// Log appends one structured run_logs row.
	Log(ctx context.Context, runID string, level string, message string) error

	// Ping verifies connectivity. The poll loop does not call it; it sees an
	// unreachable store through ClaimNextRun's WorkerTransient errors.
	Ping(ctx context.Context) error
}
