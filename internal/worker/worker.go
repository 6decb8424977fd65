// Package worker is the Run Claimer & Persister plus the polling
// supervisor that drives it: claim -> load bars & strategy -> replay
// (engine + strategy) -> compute metrics -> persist -> mark complete.
//
// Grounded directly on worker.py's run_once/main: the two-transaction
// shape (claim+mark-running+read-config in txn 1, execute+persist+mark-
// complete in txn 2, with the replay itself doing no DB I/O in between) and
// the best-effort mark-failed recovery path are carried over verbatim in
// meaning. The logging idiom (*log.Logger threaded through the
// constructor, "[worker] message" prefixes) follows the teacher's
// scheduler.Scheduler.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/nitinkhare/backtestq/internal/bterrors"
	"github.com/nitinkhare/backtestq/internal/engine"
	"github.com/nitinkhare/backtestq/internal/loader"
	"github.com/nitinkhare/backtestq/internal/storage"
	"github.com/nitinkhare/backtestq/internal/strategy"
)

// Worker polls Store for QUEUED runs and executes them one at a time.
type Worker struct {
	Store        storage.Store
	Logger       *log.Logger
	Name         string
	PollInterval time.Duration
}

// New builds a Worker. logger defaults to a discarding logger when nil.
func New(store storage.Store, name string, pollInterval time.Duration, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.New(discard{}, "", 0)
	}
	return &Worker{Store: store, Logger: logger, Name: name, PollInterval: pollInterval}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Loop repeatedly calls RunOnce, sleeping PollInterval whenever no run is
// available, until ctx is cancelled.
func (w *Worker) Loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		did, err := w.RunOnce(ctx)
		if err != nil {
			if bterrors.Is(err, bterrors.WorkerTransient) {
				w.Logger.Printf("[worker %s] store unreachable: %v", w.Name, err)
			} else {
				w.Logger.Printf("[worker %s] run_once error: %v", w.Name, err)
			}
		}
		if !did {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.PollInterval):
			}
		}
	}
}

// RunOnce claims and executes at most one run. The returned bool reports
// whether a run was claimed (true even if it ultimately failed).
func (w *Worker) RunOnce(ctx context.Context) (did bool, err error) {
	claimed, ok, err := w.Store.ClaimNextRun(ctx, w.Name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	runID := claimed.RunID
	w.Logger.Printf("[worker %s] claimed run %s", w.Name, runID)
	w.logTo(ctx, runID, "INFO", "claimed run "+runID+" by worker "+w.Name)

	if runErr := w.execute(ctx, claimed); runErr != nil {
		w.Logger.Printf("[worker %s] run %s failed: %v", w.Name, runID, runErr)
		w.markFailedBestEffort(ctx, runID, runErr)
		return true, runErr
	}

	w.Logger.Printf("[worker %s] run %s completed", w.Name, runID)
	return true, nil
}

// execute is transaction 2 in spirit: load symbols & bars, replay the
// engine (no DB I/O during replay), compute metrics, persist, mark
// complete. Returns the first fatal error encountered.
func (w *Worker) execute(ctx context.Context, claimed storage.ClaimedRun) error {
	runID := claimed.RunID
	cfg := claimed.Config

	tickers, symbolIDs, err := w.Store.ResolveSymbols(ctx, cfg)
	if err != nil {
		return err
	}
	w.logTo(ctx, runID, "INFO", "resolved symbols")

	batches, loadedIDs, err := loader.Load(ctx, w.Store, tickers, cfg.StartDate, cfg.EndDate)
	if err != nil {
		return err
	}
	for ticker, id := range loadedIDs {
		symbolIDs[ticker] = id
	}

	host, err := strategy.NewHost(cfg.StrategyName)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		StartingCashPaise: cfg.StartingCashPaise,
		FeeBps:            cfg.FeeBps,
		SlippageBps:       cfg.SlippageBps,
	}, w.Logger)
	if err != nil {
		return err
	}

	w.logTo(ctx, runID, "INFO", "starting backtest execution")
	if err := eng.Run(batches, host); err != nil {
		return err
	}

	equity := eng.EquityCurve()
	fills := eng.Fills()
	w.logTo(ctx, runID, "INFO", "replay complete")

	m := eng.Metrics()

	if err := w.Store.PersistResults(ctx, runID, symbolIDs, equity, fills, m); err != nil {
		return err
	}
	w.logTo(ctx, runID, "INFO", "run completed")
	return nil
}

// markFailedBestEffort mirrors worker.py's best-effort mark-failed: a fresh
// attempt to write FAILED + an error log, with any error from that attempt
// itself swallowed rather than propagated.
func (w *Worker) markFailedBestEffort(ctx context.Context, runID string, runErr error) {
	if err := w.Store.MarkFailed(ctx, runID, runErr.Error()); err != nil {
		w.Logger.Printf("[worker %s] failed to mark run %s FAILED: %v", w.Name, runID, err)
	}
	if err := w.Store.Log(ctx, runID, "ERROR", "run failed: "+runErr.Error()); err != nil {
		w.Logger.Printf("[worker %s] failed to write failure log for run %s: %v", w.Name, runID, err)
	}
}

func (w *Worker) logTo(ctx context.Context, runID, level, message string) {
	if err := w.Store.Log(ctx, runID, level, message); err != nil {
		w.Logger.Printf("[worker %s] run_logs write failed: %v", w.Name, err)
	}
}
