package engine

import "fmt"

// lot is one acquisition block of a position, oldest-first.
type lot struct {
	qtyRemaining   int64
	costPricePaise int64
}

// position is the per-symbol running state: a signed quantity backed by a
// FIFO queue of lots, per spec.md §3/§9. Lots exist only while qty != 0.
type position struct {
	symbol string
	qty    int64
	lots   []lot
}

// buy pushes a new lot onto the FIFO queue.
func (p *position) buy(qty, pricePaise int64) {
	p.qty += qty
	p.lots = append(p.lots, lot{qtyRemaining: qty, costPricePaise: pricePaise})
}

// sell consumes qty shares FIFO against existing lots at fillPrice, returning
// the realized PnL in paise. The caller must have already verified
// p.qty >= qty; sell panics otherwise, since that check is an engine
// invariant, not a recoverable condition at this layer.
func (p *position) sell(qty, fillPrice int64) int64 {
	if qty > p.qty {
		panic(fmt.Sprintf("position %s: sell %d exceeds held qty %d", p.symbol, qty, p.qty))
	}

	var realized int64
	remaining := qty
	consumed := 0
	for i := range p.lots {
		if remaining == 0 {
			break
		}
		l := &p.lots[i]
		take := l.qtyRemaining
		if take > remaining {
			take = remaining
		}
		realized += (fillPrice - l.costPricePaise) * take
		l.qtyRemaining -= take
		remaining -= take
		if l.qtyRemaining == 0 {
			consumed++
		}
	}
	p.lots = p.lots[consumed:]
	p.qty -= qty
	return realized
}

// qtyRemainingSum recomputes Σ lots.qty_remaining, used by the engine to
// assert the positions[sym].qty == Σ lots.qty_remaining invariant.
func (p *position) qtyRemainingSum() int64 {
	var sum int64
	for _, l := range p.lots {
		sum += l.qtyRemaining
	}
	return sum
}
