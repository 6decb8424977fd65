// Package engine is the simulation engine: a state machine for cash,
// positions, pending orders, fills and equity, driven one day at a time by
// the worker and the strategy host it drives.
//
// Grounded on internal/broker/paper.go's PaperBroker — the same role
// (simulate an order execution surface behind the same interface a live
// implementation would use) but generalized from a single average-cost
// holding per symbol to a FIFO lot queue, from synchronous same-tick fills
// to the NEXT_OPEN fill rule, and from float64 money to integer paise.
package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/nitinkhare/backtestq/internal/bardata"
	"github.com/nitinkhare/backtestq/internal/bterrors"
	"github.com/nitinkhare/backtestq/internal/loader"
	"github.com/nitinkhare/backtestq/internal/metrics"
	"github.com/nitinkhare/backtestq/internal/money"
	"github.com/nitinkhare/backtestq/internal/strategy"
)

// Config carries the per-run parameters the engine needs. The run config is
// checked for ConfigInvalid conditions when storage parses it, before the
// engine is constructed; New additionally rejects a non-positive starting
// cash or negative bps with EngineUsage.
type Config struct {
	StartingCashPaise int64
	FeeBps            int64
	SlippageBps       int64
}

// order is a queued, unfilled intent awaiting the next trading day's open.
type order struct {
	id           int64
	symbol       string
	side         strategy.Side
	qty          int64
	placedOnDate time.Time
}

// Engine owns cash, positions, pending orders, fills and the equity curve
// for exactly one run. Nothing here is shared across runs.
type Engine struct {
	cfg    Config
	logger *log.Logger

	cash        int64
	positions   map[string]*position
	openOrders  []order
	nextOrderID int64
	fills       []metrics.Fill
	equity      []metrics.EquityPoint
	todayBars   map[string]strategy.Bar
	today       time.Time
	lastClose   map[string]int64
	feesPaise   int64
}

// New builds an Engine for one run. logger defaults to a discarding logger
// when nil.
func New(cfg Config, logger *log.Logger) (*Engine, error) {
	if cfg.StartingCashPaise <= 0 {
		return nil, bterrors.Newf(bterrors.EngineUsage, "starting cash must be positive, got %d", cfg.StartingCashPaise)
	}
	if cfg.FeeBps < 0 || cfg.SlippageBps < 0 {
		return nil, bterrors.Newf(bterrors.EngineUsage, "fee_bps and slippage_bps must be non-negative, got fee=%d slippage=%d", cfg.FeeBps, cfg.SlippageBps)
	}
	if logger == nil {
		logger = log.New(discard{}, "", 0)
	}
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		cash:      cfg.StartingCashPaise,
		positions: make(map[string]*position),
		todayBars: make(map[string]strategy.Bar),
		lastClose: make(map[string]int64),
	}, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Run drives the engine through every batch in order, implementing the
// mandated per-day sequence: on_bar(*) -> process_fills_for_date(today) ->
// on_bar_strategy_hook(*) -> end_of_day(today).
func (e *Engine) Run(batches []loader.Batch, host *strategy.Host) error {
	if err := host.Init(e); err != nil {
		return err
	}
	for _, batch := range batches {
		for _, bar := range batch.Bars {
			e.OnBar(toStrategyBar(bar))
		}
		if err := e.ProcessFillsForDate(batch.Date); err != nil {
			return err
		}
		for _, bar := range batch.Bars {
			if err := host.OnBar(e, toStrategyBar(bar)); err != nil {
				return err
			}
		}
		e.EndOfDay(batch.Date)
	}
	return nil
}

func toStrategyBar(b bardata.Bar) strategy.Bar {
	return strategy.Bar{
		Date:   b.Date,
		Symbol: b.Symbol,
		Open:   b.OpenPaise,
		High:   b.HighPaise,
		Low:    b.LowPaise,
		Close:  b.ClosePaise,
		Volume: b.Volume,
	}
}

// OnBar registers today's bar for its symbol, overwriting any prior entry
// for (today, symbol) — the loader is the authoritative deduper, but the
// engine tolerates a repeat per spec.md §9.
func (e *Engine) OnBar(bar strategy.Bar) {
	e.todayBars[bar.Symbol] = bar
	e.lastClose[bar.Symbol] = bar.Close
	e.today = bar.Date
}

// ProcessFillsForDate matches every open order placed before date against
// today's bars under the NEXT_OPEN fill rule.
func (e *Engine) ProcessFillsForDate(date time.Time) error {
	var stillPending []order
	for _, o := range e.openOrders {
		if !o.placedOnDate.Before(date) {
			stillPending = append(stillPending, o)
			continue
		}
		bar, ok := e.todayBars[o.symbol]
		if !ok || !bar.Date.Equal(date) {
			stillPending = append(stillPending, o)
			continue
		}
		if err := e.fillOrder(o, bar, date); err != nil {
			return err
		}
	}
	e.openOrders = stillPending
	return nil
}

func (e *Engine) fillOrder(o order, bar strategy.Bar, date time.Time) error {
	side := money.Buy
	if o.side == strategy.SideSell {
		side = money.Sell
	}
	fillPrice := money.SlippageAdjustedPrice(bar.Open, e.cfg.SlippageBps, side)
	notional := fillPrice * o.qty
	fee := money.Fee(notional, e.cfg.FeeBps)

	var realizedPnL int64
	isClose := false

	switch o.side {
	case strategy.SideBuy:
		cost := notional + fee
		if cost > e.cash {
			rej := bterrors.Rejection{Rule: "insufficient_cash", Message: fmt.Sprintf("order %d: need %d, have %d", o.id, cost, e.cash)}
			e.logger.Printf("[engine] WARN %v", rej)
			return nil
		}
		e.cash -= cost
		e.positionFor(o.symbol).buy(o.qty, fillPrice)
		e.feesPaise += fee
	case strategy.SideSell:
		pos := e.positionFor(o.symbol)
		if pos.qty < o.qty {
			rej := bterrors.Rejection{Rule: "insufficient_position", Message: fmt.Sprintf("order %d: need %d, have %d", o.id, o.qty, pos.qty)}
			e.logger.Printf("[engine] WARN %v", rej)
			return nil
		}
		realizedPnL = pos.sell(o.qty, fillPrice)
		e.cash += notional - fee
		e.feesPaise += fee
		isClose = true
	default:
		return bterrors.Newf(bterrors.EngineUsage, "unknown order side %q", o.side)
	}

	e.fills = append(e.fills, metrics.Fill{
		Date:             date,
		Symbol:           o.symbol,
		Side:             string(o.side),
		Qty:              o.qty,
		PricePaise:       fillPrice,
		FeePaise:         fee,
		OrderID:          o.id,
		ClosesPosition:   isClose,
		RealizedPnLPaise: realizedPnL,
	})
	return nil
}

func (e *Engine) positionFor(symbol string) *position {
	p, ok := e.positions[symbol]
	if !ok {
		p = &position{symbol: symbol}
		e.positions[symbol] = p
	}
	return p
}

// EndOfDay computes equity = cash + Σ(pos.qty * close of today, or last
// known close if the symbol has no bar today) and appends it.
func (e *Engine) EndOfDay(date time.Time) {
	var equity int64 = e.cash
	for symbol, pos := range e.positions {
		if pos.qty == 0 {
			continue
		}
		close, ok := e.todayBars[symbol]
		var closePaise int64
		if ok {
			closePaise = close.Close
		} else {
			closePaise = e.lastClose[symbol]
		}
		equity += pos.qty * closePaise
	}
	e.equity = append(e.equity, metrics.EquityPoint{Date: date, EquityPaise: equity})
	e.todayBars = make(map[string]strategy.Bar)
}

// Buy implements strategy.Ctx.
func (e *Engine) Buy(symbol string, qty int64) (int64, error) {
	return e.placeOrder(symbol, strategy.SideBuy, qty)
}

// Sell implements strategy.Ctx.
func (e *Engine) Sell(symbol string, qty int64) (int64, error) {
	return e.placeOrder(symbol, strategy.SideSell, qty)
}

func (e *Engine) placeOrder(symbol string, side strategy.Side, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, bterrors.Newf(bterrors.EngineUsage, "order qty must be positive, got %d", qty)
	}
	if e.today.IsZero() {
		return 0, bterrors.New(bterrors.EngineUsage, "place_market_order called outside on_bar_strategy_hook")
	}
	e.nextOrderID++
	id := e.nextOrderID
	e.openOrders = append(e.openOrders, order{
		id:           id,
		symbol:       symbol,
		side:         side,
		qty:          qty,
		placedOnDate: e.today,
	})
	return id, nil
}

// Cash implements strategy.Ctx.
func (e *Engine) Cash() int64 { return e.cash }

// Position implements strategy.Ctx.
func (e *Engine) Position(symbol string) int64 {
	p, ok := e.positions[symbol]
	if !ok {
		return 0
	}
	return p.qty
}

// EquityCurve returns the emitted equity points in date order.
func (e *Engine) EquityCurve() []metrics.EquityPoint { return e.equity }

// Fills returns every recorded fill in chronological order.
func (e *Engine) Fills() []metrics.Fill { return e.fills }

// Metrics computes the run's RunMetrics from the accumulated equity curve
// and fills, applying the engine-value-is-zero fallback recompute.
func (e *Engine) Metrics() metrics.Metrics {
	m := metrics.Compute(e.equity, e.fills, e.feesPaise)
	return metrics.Fallback(m, e.equity)
}

// CheckInvariants checks the engine's state invariants (cash is never
// negative, each position's qty equals the sum of its lots, equity dates
// strictly ascend), returning an EngineUsage error describing the first
// violation found.
// Intended for use by tests and by callers that want a cheap sanity check
// after a full Run.
func (e *Engine) CheckInvariants() error {
	if e.cash < 0 {
		return bterrors.Newf(bterrors.EngineUsage, "invariant violated: cash went negative (%d)", e.cash)
	}
	for symbol, pos := range e.positions {
		if pos.qty != pos.qtyRemainingSum() {
			return bterrors.Newf(bterrors.EngineUsage, "invariant violated: %s qty %d != lot sum %d", symbol, pos.qty, pos.qtyRemainingSum())
		}
	}
	for i := 1; i < len(e.equity); i++ {
		if !e.equity[i].Date.After(e.equity[i-1].Date) {
			return bterrors.Newf(bterrors.EngineUsage, "invariant violated: equity_log dates not strictly ascending at index %d", i)
		}
	}
	return nil
}

var _ strategy.Ctx = (*Engine)(nil)
var _ fmt.Stringer = (*Engine)(nil)

// String summarizes engine state for debugging/logging.
func (e *Engine) String() string {
	return fmt.Sprintf("engine{cash=%d positions=%d open_orders=%d fills=%d equity_points=%d}",
		e.cash, len(e.positions), len(e.openOrders), len(e.fills), len(e.equity))
}
