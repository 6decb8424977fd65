package strategy

import (
	"testing"
)

type fakeCtx struct {
	buys  []string
	sells []string
	cash  int64
	pos   map[string]int64
}

func (f *fakeCtx) Buy(symbol string, qty int64) (int64, error) {
	f.buys = append(f.buys, symbol)
	return int64(len(f.buys)), nil
}

func (f *fakeCtx) Sell(symbol string, qty int64) (int64, error) {
	f.sells = append(f.sells, symbol)
	return int64(len(f.sells)), nil
}

func (f *fakeCtx) Cash() int64 { return f.cash }

func (f *fakeCtx) Position(symbol string) int64 { return f.pos[symbol] }

func TestRegisterAndNew(t *testing.T) {
	if _, ok := New("buy-and-hold"); !ok {
		t.Fatal("expected buy-and-hold to be registered")
	}
	if _, ok := New("does-not-exist"); ok {
		t.Fatal("expected unregistered name to return ok=false")
	}
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Register to panic on duplicate name")
		}
	}()
	Register("buy-and-hold", func() Strategy { return &BuyAndHold{} })
}

func TestRegisteredNamesIncludesFixtures(t *testing.T) {
	names := RegisteredNames()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{"buy-and-hold", "noop"} {
		if !seen[want] {
			t.Errorf("RegisteredNames() missing %q, got %v", want, names)
		}
	}
}

type panickyStrategy struct {
	NoInit
}

func (panickyStrategy) OnBar(Ctx, Bar) error {
	panic("boom")
}

func TestHostRecoversPanic(t *testing.T) {
	h := &Host{Strategy: panickyStrategy{}}
	err := h.OnBar(&fakeCtx{}, Bar{Symbol: "RELIANCE"})
	if err == nil {
		t.Fatal("expected Host.OnBar to turn a panic into an error")
	}
}

func TestHostInitNoInitIsNoOp(t *testing.T) {
	h := &Host{Strategy: &BuyAndHold{Symbol: "RELIANCE", Qty: 10}}
	if err := h.Init(&fakeCtx{}); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}
}

func TestNewHostUnknownName(t *testing.T) {
	_, err := NewHost("not-a-real-strategy")
	if err == nil {
		t.Fatal("expected NewHost to fail for an unregistered name")
	}
}
