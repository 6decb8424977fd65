// Package bardata defines the daily OHLCV bar used throughout the engine.
package bardata

import (
	"fmt"
	"time"
)

// Bar is one trading day of one instrument. Immutable once constructed.
type Bar struct {
	Date       time.Time
	Symbol     string
	OpenPaise  int64
	HighPaise  int64
	LowPaise   int64
	ClosePaise int64
	Volume     int64
}

// Validate checks the invariants spec.md §3 requires of every Bar:
// low ≤ open ≤ high, low ≤ close ≤ high, volume ≥ 0.
func (b Bar) Validate() error {
	if b.LowPaise > b.OpenPaise || b.OpenPaise > b.HighPaise {
		return fmt.Errorf("bar %s/%s: open %d not within [low %d, high %d]", b.Symbol, b.Date.Format("2006-01-02"), b.OpenPaise, b.LowPaise, b.HighPaise)
	}
	if b.LowPaise > b.ClosePaise || b.ClosePaise > b.HighPaise {
		return fmt.Errorf("bar %s/%s: close %d not within [low %d, high %d]", b.Symbol, b.Date.Format("2006-01-02"), b.ClosePaise, b.LowPaise, b.HighPaise)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s/%s: negative volume %d", b.Symbol, b.Date.Format("2006-01-02"), b.Volume)
	}
	return nil
}

// DateKey returns the stable per-day string key used for grouping/dedup.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
