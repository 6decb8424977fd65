package engine

import (
	"testing"
	"time"

	"github.com/nitinkhare/backtestq/internal/bardata"
	"github.com/nitinkhare/backtestq/internal/loader"
	"github.com/nitinkhare/backtestq/internal/strategy"
)

func day(n int) time.Time {
	return time.Date(2026, 2, 5+n, 0, 0, 0, 0, time.UTC)
}

func bar(d time.Time, symbol string, o, h, l, c, v int64) bardata.Bar {
	return bardata.Bar{Date: d, Symbol: symbol, OpenPaise: o, HighPaise: h, LowPaise: l, ClosePaise: c, Volume: v}
}

func batch(d time.Time, bars ...bardata.Bar) loader.Batch {
	return loader.Batch{Date: d, Bars: bars}
}

const scenarioCash = 10_000_000
const scenarioFeeBps = 1
const scenarioSlipBps = 2

func newScenarioEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{StartingCashPaise: scenarioCash, FeeBps: scenarioFeeBps, SlippageBps: scenarioSlipBps}, nil)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return e
}

// Scenario 1: no trades -> flat equity curve at starting cash.
func TestScenarioNoTrades(t *testing.T) {
	e := newScenarioEngine(t)
	host := &strategy.Host{Strategy: strategy.NoOp{}}

	batches := []loader.Batch{
		batch(day(0), bar(day(0), "RELIANCE", 100_00, 105_00, 99_00, 102_00, 1000)),
		batch(day(1), bar(day(1), "RELIANCE", 102_00, 106_00, 100_00, 103_00, 1000)),
		batch(day(2), bar(day(2), "RELIANCE", 103_00, 107_00, 101_00, 104_00, 1000)),
		batch(day(3), bar(day(3), "RELIANCE", 104_00, 108_00, 102_00, 105_00, 1000)),
	}
	if err := e.Run(batches, host); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	eq := e.EquityCurve()
	if len(eq) != 4 {
		t.Fatalf("len(equity) = %d, want 4", len(eq))
	}
	for _, p := range eq {
		if p.EquityPaise != scenarioCash {
			t.Errorf("equity on %v = %d, want %d", p.Date, p.EquityPaise, scenarioCash)
		}
	}
	if len(e.Fills()) != 0 {
		t.Errorf("expected no fills, got %d", len(e.Fills()))
	}

	m := e.Metrics()
	if m.Sharpe != 0 || m.MaxDrawdownPaise != 0 || m.TradesClosed != 0 {
		t.Errorf("metrics = %+v, want all zero", m)
	}
}

// Scenario 2: single BUY then hold.
func TestScenarioSingleBuyThenHold(t *testing.T) {
	e := newScenarioEngine(t)
	host := &strategy.Host{Strategy: &strategy.BuyAndHold{Symbol: "RELIANCE", Qty: 10}}

	batches := []loader.Batch{
		batch(day(0), bar(day(0), "RELIANCE", 99_500, 100_500, 99_000, 1_000_00, 1000)),
		batch(day(1), bar(day(1), "RELIANCE", 1_010_00, 1_030_00, 1_000_00, 1_020_00, 1000)),
	}
	if err := e.Run(batches, host); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	fills := e.Fills()
	if len(fills) != 1 {
		t.Fatalf("len(fills) = %d, want 1", len(fills))
	}
	f := fills[0]
	if f.PricePaise != 101_020 {
		t.Errorf("fill price = %d, want 101020", f.PricePaise)
	}
	if f.FeePaise != 102 {
		t.Errorf("fee = %d, want 102", f.FeePaise)
	}

	wantCash := int64(scenarioCash - 1_010_200 - 102)
	if e.Cash() != wantCash {
		t.Errorf("cash = %d, want %d", e.Cash(), wantCash)
	}

	eq := e.EquityCurve()
	wantDay2Equity := wantCash + 10*102_000
	if eq[1].EquityPaise != wantDay2Equity {
		t.Errorf("day2 equity = %d, want %d", eq[1].EquityPaise, wantDay2Equity)
	}
}

// Scenario 3: BUY then SELL in the same week realizes FIFO PnL.
func TestScenarioBuyThenSellFIFO(t *testing.T) {
	e := newScenarioEngine(t)

	batches := []loader.Batch{
		batch(day(0), bar(day(0), "RELIANCE", 100_00, 105_00, 99_00, 100_00, 1000)),
		batch(day(1), bar(day(1), "RELIANCE", 101_00, 106_00, 100_00, 102_00, 1000)),
		batch(day(2), bar(day(2), "RELIANCE", 110_00, 115_00, 108_00, 112_00, 1000)),
	}

	s := &scriptedBuySell{}
	host := &strategy.Host{Strategy: s}
	if err := e.Run(batches, host); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	fills := e.Fills()
	if len(fills) != 2 {
		t.Fatalf("len(fills) = %d, want 2 (one buy, one sell)", len(fills))
	}
	buyFill, sellFill := fills[0], fills[1]
	if buyFill.Side != "BUY" || sellFill.Side != "SELL" {
		t.Fatalf("fills = %+v, want BUY then SELL", fills)
	}

	wantPnL := (sellFill.PricePaise - buyFill.PricePaise) * 10
	if sellFill.RealizedPnLPaise != wantPnL {
		t.Errorf("realized pnl = %d, want %d", sellFill.RealizedPnLPaise, wantPnL)
	}

	m := e.Metrics()
	if m.TradesClosed != 1 {
		t.Errorf("trades_closed = %d, want 1", m.TradesClosed)
	}
	wantWinRate := 0.0
	if wantPnL > 0 {
		wantWinRate = 1.0
	}
	if m.WinRate != wantWinRate {
		t.Errorf("win_rate = %v, want %v", m.WinRate, wantWinRate)
	}
}

type scriptedBuySell struct {
	strategy.NoInit
	bought bool
	sold   bool
	day    int
}

func (s *scriptedBuySell) OnBar(ctx strategy.Ctx, bar strategy.Bar) error {
	defer func() { s.day++ }()
	switch s.day {
	case 0:
		_, err := ctx.Buy(bar.Symbol, 10)
		return err
	case 1:
		_, err := ctx.Sell(bar.Symbol, 10)
		return err
	}
	return nil
}

// Scenario 4: insufficient funds rejects the order but the run completes.
func TestScenarioInsufficientFunds(t *testing.T) {
	e, err := New(Config{StartingCashPaise: 1000, FeeBps: scenarioFeeBps, SlippageBps: scenarioSlipBps}, nil)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	host := &strategy.Host{Strategy: &strategy.BuyAndHold{Symbol: "RELIANCE", Qty: 10}}

	batches := []loader.Batch{
		batch(day(0), bar(day(0), "RELIANCE", 9_900, 10_100, 9_800, 9_950, 1000)),
		batch(day(1), bar(day(1), "RELIANCE", 100_000, 101_000, 99_000, 100_500, 1000)),
	}
	if err := e.Run(batches, host); err != nil {
		t.Fatalf("Run() = %v, want nil (rejection is not fatal)", err)
	}

	if len(e.Fills()) != 0 {
		t.Errorf("expected the order to be rejected (no fill), got %d fills", len(e.Fills()))
	}
	if e.Cash() != 1000 {
		t.Errorf("cash = %d, want unchanged 1000", e.Cash())
	}
}

func TestInvariantsHoldAfterRun(t *testing.T) {
	e := newScenarioEngine(t)
	host := &strategy.Host{Strategy: &strategy.BuyAndHold{Symbol: "RELIANCE", Qty: 10}}

	batches := []loader.Batch{
		batch(day(0), bar(day(0), "RELIANCE", 99_00, 101_00, 98_00, 100_00, 1000)),
		batch(day(1), bar(day(1), "RELIANCE", 101_00, 106_00, 100_00, 102_00, 1000)),
	}
	if err := e.Run(batches, host); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if err := e.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}
