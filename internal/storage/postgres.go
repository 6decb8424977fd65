// Package storage - postgres.go is the pgxpool-backed Store implementation.
//
// This replaces the teacher's postgres.go stub ("Full SQL queries will be
// added when the database schema is finalized... TODO: Add actual database
// connection using pgx") with the real pgx/v5 integration it was left
// waiting for, against the schema in schema/schema.sql.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/nitinkhare/backtestq/internal/bardata"
	"github.com/nitinkhare/backtestq/internal/bterrors"
	"github.com/nitinkhare/backtestq/internal/metrics"
)

// PostgresStore implements Store using a pgxpool.Pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-constructed pool. Callers build the
// pool (pgxpool.New) so that lifecycle (Close) stays with cmd/worker.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// runConfigJSON mirrors the recognized run config_json options from
// spec.md §6.
type runConfigJSON struct {
	Venue             string   `json:"venue"`
	Timeframe         string   `json:"timeframe"`
	Symbols           []string `json:"symbols"`
	PortfolioID       *string  `json:"portfolio_id"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	StartingCashPaise int64    `json:"starting_cash_paise"`
	FeeBps            int64    `json:"fee_bps"`
	SlippageBps       int64    `json:"slippage_bps"`
	FillRule          string   `json:"fill_rule"`
	Weighting         string   `json:"weighting"`
	Rebalance         string   `json:"rebalance"`
	Currency          string   `json:"currency"`
	AssetClass        string   `json:"asset_class"`
}

func parseRunConfig(raw []byte, strategyName string) (RunConfig, error) {
	var j runConfigJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return RunConfig{}, bterrors.Wrap(bterrors.ConfigInvalid, "parse run config_json", err)
	}
	if len(j.Symbols) == 0 && j.PortfolioID == nil {
		return RunConfig{}, bterrors.New(bterrors.ConfigInvalid, "exactly one of symbols/portfolio_id must be present")
	}
	if len(j.Symbols) > 0 && j.PortfolioID != nil {
		return RunConfig{}, bterrors.New(bterrors.ConfigInvalid, "exactly one of symbols/portfolio_id must be present, got both")
	}
	start, err := time.Parse("2006-01-02", j.StartDate)
	if err != nil {
		return RunConfig{}, bterrors.Wrap(bterrors.ConfigInvalid, "parse start_date", err)
	}
	end, err := time.Parse("2006-01-02", j.EndDate)
	if err != nil {
		return RunConfig{}, bterrors.Wrap(bterrors.ConfigInvalid, "parse end_date", err)
	}
	if end.Before(start) {
		return RunConfig{}, bterrors.Newf(bterrors.ConfigInvalid, "end_date %s before start_date %s", j.EndDate, j.StartDate)
	}
	if j.StartingCashPaise <= 0 {
		return RunConfig{}, bterrors.Newf(bterrors.ConfigInvalid, "starting_cash_paise must be positive, got %d", j.StartingCashPaise)
	}
	if j.FillRule != "" && j.FillRule != "NEXT_OPEN" {
		return RunConfig{}, bterrors.Newf(bterrors.ConfigInvalid, "unknown fill_rule %q", j.FillRule)
	}

	return RunConfig{
		Symbols:           j.Symbols,
		PortfolioID:       j.PortfolioID,
		StartDate:         start,
		EndDate:           end,
		StartingCashPaise: j.StartingCashPaise,
		FeeBps:            j.FeeBps,
		SlippageBps:       j.SlippageBps,
		FillRule:          "NEXT_OPEN",
		StrategyName:      strategyName,
	}, nil
}

// ClaimNextRun selects the oldest QUEUED run with SELECT ... FOR UPDATE
// SKIP LOCKED, marks it RUNNING, and commits — the entirety of txn 1. A run
// whose config_json fails to parse is marked FAILED in the same transaction
// and the ConfigInvalid error is returned with ok = false.
func (s *PostgresStore) ClaimNextRun(ctx context.Context, workerName string) (ClaimedRun, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ClaimedRun{}, false, bterrors.Wrap(bterrors.WorkerTransient, "begin claim transaction", err)
	}
	defer tx.Rollback(ctx)

	var runID, strategyName string
	var cfgJSON []byte
	err = tx.QueryRow(ctx, `
		SELECT r.id, r.config_json, s.name
		FROM runs r
		JOIN strategies s ON s.id = r.strategy_id
		WHERE r.status = 'QUEUED'
		ORDER BY r.created_at
		FOR UPDATE OF r SKIP LOCKED
		LIMIT 1
	`).Scan(&runID, &cfgJSON, &strategyName)
	if err == pgx.ErrNoRows {
		return ClaimedRun{}, false, nil
	}
	if err != nil {
		return ClaimedRun{}, false, bterrors.Wrap(bterrors.WorkerTransient, "claim query", err)
	}

	cfg, err := parseRunConfig(cfgJSON, strategyName)
	if err != nil {
		errText := err.Error()
		if len(errText) > maxErrorLen {
			errText = errText[:maxErrorLen]
		}
		if _, uerr := tx.Exec(ctx, `UPDATE runs SET status = 'FAILED', error = $2, started_at = now(), finished_at = now() WHERE id = $1`, runID, errText); uerr != nil {
			return ClaimedRun{}, false, bterrors.Wrap(bterrors.PersistenceError, "mark run FAILED", uerr)
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			return ClaimedRun{}, false, bterrors.Wrap(bterrors.PersistenceError, "commit claim transaction", cerr)
		}
		return ClaimedRun{}, false, err
	}

	if _, err := tx.Exec(ctx, `UPDATE runs SET status = 'RUNNING', started_at = now() WHERE id = $1`, runID); err != nil {
		return ClaimedRun{}, false, bterrors.Wrap(bterrors.PersistenceError, "mark run RUNNING", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ClaimedRun{}, false, bterrors.Wrap(bterrors.PersistenceError, "commit claim transaction", err)
	}

	return ClaimedRun{RunID: runID, Config: cfg}, true, nil
}

// ResolveSymbols expands cfg's symbols or portfolio_id into a concrete
// ticker list, grounded on the original's get_portfolio_symbols (which
// raises if the portfolio has no symbols).
func (s *PostgresStore) ResolveSymbols(ctx context.Context, cfg RunConfig) ([]string, map[string]string, error) {
	if len(cfg.Symbols) > 0 {
		return s.tickerIDs(ctx, cfg.Symbols)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT sym.ticker, sym.id
		FROM portfolio_symbols ps
		JOIN symbols sym ON sym.id = ps.symbol_id
		WHERE ps.portfolio_id = $1
		ORDER BY sym.ticker
	`, *cfg.PortfolioID)
	if err != nil {
		return nil, nil, bterrors.Wrap(bterrors.ConfigInvalid, "resolve portfolio symbols", err)
	}
	defer rows.Close()

	var tickers []string
	ids := make(map[string]string)
	for rows.Next() {
		var ticker, id string
		if err := rows.Scan(&ticker, &id); err != nil {
			return nil, nil, bterrors.Wrap(bterrors.ConfigInvalid, "scan portfolio symbol", err)
		}
		tickers = append(tickers, ticker)
		ids[ticker] = id
	}
	if len(tickers) == 0 {
		return nil, nil, bterrors.Newf(bterrors.ConfigInvalid, "portfolio %s has no symbols", *cfg.PortfolioID)
	}
	return tickers, ids, nil
}

func (s *PostgresStore) tickerIDs(ctx context.Context, tickers []string) ([]string, map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT ticker, id FROM symbols WHERE ticker = ANY($1)`, pq.Array(tickers))
	if err != nil {
		return nil, nil, bterrors.Wrap(bterrors.ConfigInvalid, "resolve symbols", err)
	}
	defer rows.Close()

	ids := make(map[string]string, len(tickers))
	for rows.Next() {
		var ticker, id string
		if err := rows.Scan(&ticker, &id); err != nil {
			return nil, nil, bterrors.Wrap(bterrors.ConfigInvalid, "scan symbol", err)
		}
		ids[ticker] = id
	}
	if len(ids) != len(tickers) {
		return nil, nil, bterrors.Newf(bterrors.ConfigInvalid, "unknown ticker(s) among %v", tickers)
	}
	return tickers, ids, nil
}

// LoadBars implements loader.Source, the direct Go analogue of the
// original's load_bars_by_date (`ticker = ANY(:tickers)`).
func (s *PostgresStore) LoadBars(ctx context.Context, tickers []string, start, end time.Time) ([]bardata.Bar, map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sym.ticker, sym.id, b.date, b.open_paise, b.high_paise, b.low_paise, b.close_paise, b.volume
		FROM bars_daily b
		JOIN symbols sym ON sym.id = b.symbol_id
		WHERE sym.ticker = ANY($1) AND b.date BETWEEN $2 AND $3
		ORDER BY b.date, sym.ticker
	`, pq.Array(tickers), start, end)
	if err != nil {
		return nil, nil, bterrors.Wrap(bterrors.PersistenceError, "load bars", err)
	}
	defer rows.Close()

	var bars []bardata.Bar
	ids := make(map[string]string)
	for rows.Next() {
		var b bardata.Bar
		var symbolID string
		if err := rows.Scan(&b.Symbol, &symbolID, &b.Date, &b.OpenPaise, &b.HighPaise, &b.LowPaise, &b.ClosePaise, &b.Volume); err != nil {
			return nil, nil, bterrors.Wrap(bterrors.PersistenceError, "scan bar", err)
		}
		bars = append(bars, b)
		ids[b.Symbol] = symbolID
	}
	return bars, ids, nil
}

// PersistResults implements txn 2: delete-then-insert equity/fills/metrics,
// then mark the run COMPLETED.
func (s *PostgresStore) PersistResults(ctx context.Context, runID string, symbolIDs map[string]string, equity []metrics.EquityPoint, fills []metrics.Fill, m metrics.Metrics) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return bterrors.Wrap(bterrors.PersistenceError, "begin persist transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"run_equity", "run_fills", "run_metrics"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE run_id = $1`, table), runID); err != nil {
			return bterrors.Wrap(bterrors.PersistenceError, fmt.Sprintf("delete existing %s rows", table), err)
		}
	}

	for _, p := range equity {
		if _, err := tx.Exec(ctx, `INSERT INTO run_equity (run_id, date, equity_paise) VALUES ($1, $2, $3)`, runID, p.Date, p.EquityPaise); err != nil {
			return bterrors.Wrap(bterrors.PersistenceError, "insert run_equity", err)
		}
	}

	for _, f := range fills {
		symbolID, ok := symbolIDs[f.Symbol]
		if !ok {
			return bterrors.Newf(bterrors.PersistenceError, "fill for unresolved ticker %q", f.Symbol)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO run_fills (run_id, date, symbol_id, side, qty, price_paise, fee_paise, order_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, runID, f.Date, symbolID, f.Side, f.Qty, f.PricePaise, f.FeePaise, f.OrderID); err != nil {
			return bterrors.Wrap(bterrors.PersistenceError, "insert run_fills", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO run_metrics (run_id, sharpe, max_drawdown_paise, max_drawdown_pct, win_rate, trades_closed, realized_pnl_paise, fees_paise, annual_return_pct, volatility)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, runID, m.Sharpe, m.MaxDrawdownPaise, m.MaxDrawdownPct, m.WinRate, m.TradesClosed, m.RealizedPnLPaise, m.FeesPaise, m.AnnualReturnPct, m.Volatility); err != nil {
		return bterrors.Wrap(bterrors.PersistenceError, "insert run_metrics", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE runs SET status = 'COMPLETED', finished_at = now() WHERE id = $1`, runID); err != nil {
		return bterrors.Wrap(bterrors.PersistenceError, "mark run COMPLETED", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return bterrors.Wrap(bterrors.PersistenceError, "commit persist transaction", err)
	}
	return nil
}

const maxErrorLen = 10000

// MarkFailed opens a fresh transaction solely to record failure, following
// the original's best-effort mark-failed behavior: the caller has already
// rolled back whatever transaction failed, so this never assumes an
// in-flight transaction to reuse.
func (s *PostgresStore) MarkFailed(ctx context.Context, runID string, errText string) error {
	if len(errText) > maxErrorLen {
		errText = errText[:maxErrorLen]
	}
	_, err := s.pool.Exec(ctx, `UPDATE runs SET status = 'FAILED', error = $2, finished_at = now() WHERE id = $1`, runID, errText)
	if err != nil {
		return bterrors.Wrap(bterrors.PersistenceError, "mark run FAILED", err)
	}
	return nil
}

// Log appends one structured run_logs row.
func (s *PostgresStore) Log(ctx context.Context, runID string, level string, message string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO run_logs (run_id, level, message) VALUES ($1, $2, $3)`, runID, level, message)
	if err != nil {
		return bterrors.Wrap(bterrors.PersistenceError, "insert run_logs", err)
	}
	return nil
}

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
