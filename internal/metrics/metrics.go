// Package metrics computes risk/return statistics from an equity curve and
// fill stream, per spec.md §4.4.
//
// Grounded on the teacher's internal/analytics.computeSharpeRatio and its
// peak-tracking drawdown loop, rebuilt here against the equity-curve/fills
// data model (the teacher's analytics operates on a list of closed trades
// with entry/exit prices; this operates on the daily equity series the
// Simulation Engine actually emits) and on worker.py's
// compute_sharpe_from_equity / compute_max_drawdown_pct fallbacks.
package metrics

import (
	"math"
	"time"
)

// EquityPoint is one day's total mark-to-market equity.
type EquityPoint struct {
	Date        time.Time
	EquityPaise int64
}

// Fill is one realized execution, as recorded by the engine.
type Fill struct {
	Date             time.Time
	Symbol           string
	Side             string
	Qty              int64
	PricePaise       int64
	FeePaise         int64
	OrderID          int64
	ClosesPosition   bool  // true for SELL fills, which close out FIFO lots
	RealizedPnLPaise int64 // meaningful only when ClosesPosition
}

// Metrics is the computed RunMetrics row.
type Metrics struct {
	Sharpe            float64
	MaxDrawdownPaise  int64
	MaxDrawdownPct    float64
	WinRate           float64
	TradesClosed      int64
	RealizedPnLPaise  int64
	FeesPaise         int64
	AnnualReturnPct   float64
	Volatility        float64
}

// Compute derives Metrics from the equity curve, fill stream and
// accumulated fees. feesPaise is the engine's running total across every
// fill (BUY and SELL alike) and is reported as given; Compute does not sum
// the fills' FeePaise itself.
func Compute(equity []EquityPoint, fills []Fill, feesPaise int64) Metrics {
	returns := dailyReturns(equity)

	var realizedPnL int64
	var tradesClosed, wins int64
	for _, f := range fills {
		if !f.ClosesPosition {
			continue
		}
		realizedPnL += f.RealizedPnLPaise
		tradesClosed++
		if f.RealizedPnLPaise > 0 {
			wins++
		}
	}

	var winRate float64
	if tradesClosed > 0 {
		winRate = float64(wins) / float64(tradesClosed)
	}

	ddPaise, ddPct := maxDrawdown(equity)

	return Metrics{
		Sharpe:           sharpe(returns),
		MaxDrawdownPaise: ddPaise,
		MaxDrawdownPct:   ddPct,
		WinRate:          winRate,
		TradesClosed:     tradesClosed,
		RealizedPnLPaise: realizedPnL,
		FeesPaise:        feesPaise,
		AnnualReturnPct:  annualReturnPct(equity, len(returns)),
		Volatility:       volatility(returns),
	}
}

// Fallback recomputes Sharpe and MaxDrawdownPct from the equity curve when
// the engine-reported value is exactly zero, mirroring worker.py's
// write_results fallback (an engine that reports 0 because it skipped the
// computation looks identical to one that legitimately computed 0, so the
// Persister recomputes defensively in both cases).
func Fallback(m Metrics, equity []EquityPoint) Metrics {
	returns := dailyReturns(equity)
	if m.Sharpe == 0 {
		m.Sharpe = sharpe(returns)
	}
	if m.MaxDrawdownPct == 0 {
		_, ddPct := maxDrawdown(equity)
		m.MaxDrawdownPct = ddPct
	}
	return m
}

func dailyReturns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].EquityPaise
		if prev == 0 {
			continue
		}
		r := float64(equity[i].EquityPaise)/float64(prev) - 1
		returns = append(returns, r)
	}
	return returns
}

const tradingDaysPerYear = 252

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, sd := meanStdevSample(returns)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(tradingDaysPerYear)
}

func volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	_, sd := meanStdevSample(returns)
	return sd * math.Sqrt(tradingDaysPerYear)
}

func meanStdevSample(xs []float64) (mean, stdev float64) {
	n := float64(len(xs))
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / n

	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	stdev = math.Sqrt(sumSq / (n - 1))
	return mean, stdev
}

func annualReturnPct(equity []EquityPoint, nReturns int) float64 {
	if nReturns == 0 || len(equity) == 0 {
		return 0
	}
	first := equity[0].EquityPaise
	if first <= 0 {
		return 0
	}
	last := equity[len(equity)-1].EquityPaise
	ratio := float64(last) / float64(first)
	return (math.Pow(ratio, tradingDaysPerYear/float64(nReturns)) - 1) * 100
}

func maxDrawdown(equity []EquityPoint) (paise int64, pct float64) {
	if len(equity) == 0 {
		return 0, 0
	}
	peak := equity[0].EquityPaise
	var maxDDPaise int64
	var maxDDPct float64
	for _, p := range equity {
		if p.EquityPaise > peak {
			peak = p.EquityPaise
		}
		dd := peak - p.EquityPaise
		if dd > maxDDPaise {
			maxDDPaise = dd
		}
		if peak > 0 {
			ddPct := float64(dd) / float64(peak) * 100
			if ddPct > maxDDPct {
				maxDDPct = ddPct
			}
		}
	}
	return maxDDPaise, maxDDPct
}
