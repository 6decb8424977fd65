package strategy

// BuyAndHold buys a fixed quantity of a single symbol the first time it
// sees a bar for that symbol, then never trades again. Used as a fixture
// in engine/worker tests and as a minimal example of the Strategy
// interface — the registry-and-fixture role internal/strategy/breakout.go
// and friends play in the teacher repo.
type BuyAndHold struct {
	NoInit

	Symbol string
	Qty    int64

	bought bool
}

// Qty defaults to 10 shares and Symbol defaults to the first symbol seen
// when left unset, so the registry factory is directly usable without
// further configuration.
func (s *BuyAndHold) OnBar(ctx Ctx, bar Bar) error {
	if s.bought {
		return nil
	}
	if s.Symbol == "" {
		s.Symbol = bar.Symbol
	}
	if bar.Symbol != s.Symbol {
		return nil
	}
	qty := s.Qty
	if qty == 0 {
		qty = 10
	}
	if _, err := ctx.Buy(s.Symbol, qty); err != nil {
		return err
	}
	s.bought = true
	return nil
}

// NoOp never trades. Used to exercise the "strategy that never trades"
// boundary behavior in spec.md §8.
type NoOp struct {
	NoInit
}

func (NoOp) OnBar(Ctx, Bar) error { return nil }

func init() {
	Register("buy-and-hold", func() Strategy { return &BuyAndHold{} })
	Register("noop", func() Strategy { return &NoOp{} })
}
