package strategy

import (
	"fmt"

	"github.com/nitinkhare/backtestq/internal/bterrors"
)

// Host loads and drives a Strategy's lifecycle hooks. It is the only
// component that calls into user-authored code, so it is also the only
// component that needs to turn a panicking strategy into a well-typed
// StrategyRuntime error instead of crashing the worker.
type Host struct {
	Strategy Strategy
}

// NewHost resolves name from the registry, returning StrategyInvalid if
// it isn't registered — the Go analogue of "on_bar is not a callable".
func NewHost(name string) (*Host, error) {
	strat, ok := New(name)
	if !ok {
		return nil, bterrors.Newf(bterrors.StrategyInvalid, "strategy %q is not registered (known: %v)", name, RegisteredNames())
	}
	return &Host{Strategy: strat}, nil
}

// Init calls the strategy's optional one-time setup hook exactly once,
// recovering any panic into a StrategyRuntime error.
func (h *Host) Init(ctx Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = bterrors.Newf(bterrors.StrategyRuntime, "strategy init panicked: %v", r)
		}
	}()
	if e := h.Strategy.Init(ctx); e != nil {
		return bterrors.Wrap(bterrors.StrategyRuntime, "strategy init failed", e)
	}
	return nil
}

// OnBar calls the strategy's per-bar hook, recovering any panic into a
// StrategyRuntime error.
func (h *Host) OnBar(ctx Ctx, bar Bar) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = bterrors.Newf(bterrors.StrategyRuntime, "on_bar(%s, %s) panicked: %v", bar.Symbol, bar.Date.Format("2006-01-02"), r)
		}
	}()
	if e := h.Strategy.OnBar(ctx, bar); e != nil {
		return bterrors.Wrap(bterrors.StrategyRuntime, fmt.Sprintf("on_bar(%s, %s) failed", bar.Symbol, bar.Date.Format("2006-01-02")), e)
	}
	return nil
}
