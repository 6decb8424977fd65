// Package strategy defines the strategy framework the Simulation Engine
// drives each bar.
//
// Design rule (spec.md §9): "the strategy is most naturally represented as
// a compiled plug-in or an interface implementation registered by name, not
// as source executed at run time." Strategies here are compiled Go types
// registered by name — the same map-and-factory idiom the teacher uses for
// brokers (internal/broker.Registry) — rather than a dynamically evaluated
// scripting language.
package strategy

import (
	"fmt"
	"time"
)

// Side is BUY or SELL.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Bar is the read-only view of a day's OHLCV a strategy's OnBar hook sees.
type Bar struct {
	Date   time.Time
	Symbol string
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64
}

// Ctx is the narrow capability set a strategy may use. It is implemented by
// the engine but never exposes engine internals (cash ledger, lot queues,
// order queue) — an abstraction boundary, not a language feature, per
// spec.md §9.
type Ctx interface {
	// Buy enqueues a BUY order for the configured fill rule and returns its
	// monotonic order id. It never fills synchronously.
	Buy(symbol string, qty int64) (int64, error)

	// Sell enqueues a SELL order for the configured fill rule and returns
	// its monotonic order id. It never fills synchronously.
	Sell(symbol string, qty int64) (int64, error)

	// Cash returns the current cash balance in paise.
	Cash() int64

	// Position returns the current signed quantity held in symbol.
	Position(symbol string) int64
}

// Strategy is user-authored decision logic. Init is optional (a no-op
// default is provided by embedding NoInit); OnBar is required.
type Strategy interface {
	Init(ctx Ctx) error
	OnBar(ctx Ctx, bar Bar) error
}

// NoInit satisfies Strategy's optional Init hook for strategies that don't
// need one-time setup.
type NoInit struct{}

func (NoInit) Init(Ctx) error { return nil }

// factory constructs a fresh Strategy instance for a registered name.
type factory func() Strategy

var registry = map[string]factory{}

// Register adds a strategy factory under name. Call from an init() in the
// strategy's own file, mirroring internal/broker's registration pattern.
func Register(name string, f factory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("strategy: %q already registered", name))
	}
	registry[name] = f
}

// New looks up a registered strategy by name. The caller is expected to
// wrap a false second return into bterrors.StrategyInvalid.
func New(name string) (Strategy, bool) {
	f, ok := registry[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// RegisteredNames lists every strategy name currently registered.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
