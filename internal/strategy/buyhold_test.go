package strategy

import "testing"

func TestBuyAndHoldBuysOnceThenHolds(t *testing.T) {
	s := &BuyAndHold{Symbol: "RELIANCE", Qty: 10}
	ctx := &fakeCtx{}

	if err := s.OnBar(ctx, Bar{Symbol: "RELIANCE"}); err != nil {
		t.Fatalf("OnBar() = %v, want nil", err)
	}
	if err := s.OnBar(ctx, Bar{Symbol: "RELIANCE"}); err != nil {
		t.Fatalf("OnBar() = %v, want nil", err)
	}
	if len(ctx.buys) != 1 {
		t.Errorf("expected exactly one buy, got %d", len(ctx.buys))
	}
}

func TestBuyAndHoldIgnoresOtherSymbols(t *testing.T) {
	s := &BuyAndHold{Symbol: "RELIANCE", Qty: 10}
	ctx := &fakeCtx{}

	if err := s.OnBar(ctx, Bar{Symbol: "TCS"}); err != nil {
		t.Fatalf("OnBar() = %v, want nil", err)
	}
	if len(ctx.buys) != 0 {
		t.Errorf("expected no buy for an unrelated symbol, got %d", len(ctx.buys))
	}
}

func TestBuyAndHoldDefaultsToFirstSymbolSeen(t *testing.T) {
	s := &BuyAndHold{}
	ctx := &fakeCtx{}

	if err := s.OnBar(ctx, Bar{Symbol: "TCS"}); err != nil {
		t.Fatalf("OnBar() = %v, want nil", err)
	}
	if len(ctx.buys) != 1 || ctx.buys[0] != "TCS" {
		t.Errorf("expected a zero-value BuyAndHold to adopt the first symbol it sees, got buys=%v", ctx.buys)
	}
}

func TestNoOpNeverTrades(t *testing.T) {
	s := NoOp{}
	ctx := &fakeCtx{}
	if err := s.OnBar(ctx, Bar{Symbol: "RELIANCE"}); err != nil {
		t.Fatalf("OnBar() = %v, want nil", err)
	}
	if len(ctx.buys) != 0 || len(ctx.sells) != 0 {
		t.Error("NoOp strategy placed an order")
	}
}
