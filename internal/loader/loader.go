// Package loader fetches daily bars for a run and groups them into the
// per-date, ticker-ordered batches the Simulation Engine replays.
//
// Grounded on internal/market.Calendar's role as the one place that knows
// about trading-day/date structure, but here the date structure comes from
// whatever bars the store actually has (no synthetic calendar) per
// spec.md §4.1: "Missing dates are simply absent."
package loader

import (
	"context"
	"sort"
	"time"

	"github.com/nitinkhare/backtestq/internal/bardata"
	"github.com/nitinkhare/backtestq/internal/bterrors"
)

// Batch is every bar for one trading date, sorted by ticker.
type Batch struct {
	Date time.Time
	Bars []bardata.Bar
}

// Source is the storage-backed bar feed. Implemented by
// internal/storage.PostgresStore; a fake implementation backs loader tests.
type Source interface {
	LoadBars(ctx context.Context, tickers []string, start, end time.Time) ([]bardata.Bar, map[string]string, error)
}

// Load fetches bars for tickers over [start, end], validates each one,
// dedupes by (date, symbol) keeping the last-seen bar, and returns them
// grouped into date-ascending, ticker-ascending batches along with the
// ticker -> symbol_id mapping Load's caller needs for fill persistence.
func Load(ctx context.Context, src Source, tickers []string, start, end time.Time) ([]Batch, map[string]string, error) {
	bars, symbolIDs, err := src.LoadBars(ctx, tickers, start, end)
	if err != nil {
		return nil, nil, err
	}

	type key struct {
		date   string
		symbol string
	}
	deduped := make(map[key]bardata.Bar, len(bars))
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return nil, nil, bterrors.Wrap(bterrors.ConfigInvalid, "invalid bar from store", err)
		}
		deduped[key{bardata.DateKey(b.Date), b.Symbol}] = b
	}
	if len(deduped) == 0 {
		return nil, nil, bterrors.New(bterrors.NoBarsFound, "no bars found for requested tickers/date range")
	}

	byDate := make(map[string][]bardata.Bar)
	for _, b := range deduped {
		dk := bardata.DateKey(b.Date)
		byDate[dk] = append(byDate[dk], b)
	}

	dateKeys := make([]string, 0, len(byDate))
	for dk := range byDate {
		dateKeys = append(dateKeys, dk)
	}
	sort.Strings(dateKeys)

	batches := make([]Batch, 0, len(dateKeys))
	for _, dk := range dateKeys {
		dayBars := byDate[dk]
		sort.Slice(dayBars, func(i, j int) bool { return dayBars[i].Symbol < dayBars[j].Symbol })
		batches = append(batches, Batch{Date: dayBars[0].Date, Bars: dayBars})
	}

	return batches, symbolIDs, nil
}
