package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signal-trader/internal/types"
)

// position is a net holding. qty > 0 is long, qty < 0 is short.
type position struct {
	qty      int
	avg      decimal.Decimal
	openedAt time.Time
}

// fill is what applying one order did to the book.
type fill struct {
	realized  decimal.Decimal
	closedQty int
	position  position
}

// positionManager is the per-symbol ledger. Realized P&L only comes out of
// fills that reduce or flip a position.
type positionManager struct {
	mu        sync.Mutex
	positions map[string]*position
}

func newPositionManager() *positionManager {
	return &positionManager{positions: make(map[string]*position)}
}

func (pm *positionManager) get(symbol string) (position, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	p, ok := pm.positions[symbol]
	if !ok {
		return position{}, false
	}
	return *p, true
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// apply books a filled order.
func (pm *positionManager) apply(symbol string, side types.Action, qty int, price decimal.Decimal, at time.Time) fill {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	delta := qty
	if side == types.ActionSell {
		delta = -qty
	}

	p := pm.positions[symbol]
	if p == nil {
		p = &position{}
		pm.positions[symbol] = p
	}

	var f fill
	switch {
	case p.qty == 0:
		p.qty, p.avg, p.openedAt = delta, price, at

	case sign(p.qty) == sign(delta):
		// adding to the position: weighted average entry
		cost := p.avg.Mul(decimal.NewFromInt(int64(abs(p.qty)))).Add(price.Mul(decimal.NewFromInt(int64(qty))))
		p.qty += delta
		p.avg = cost.Div(decimal.NewFromInt(int64(abs(p.qty))))

	default:
		closing := min(abs(delta), abs(p.qty))
		perUnit := price.Sub(p.avg)
		if p.qty < 0 {
			perUnit = perUnit.Neg()
		}
		f.realized = perUnit.Mul(decimal.NewFromInt(int64(closing)))
		f.closedQty = closing

		p.qty += delta
		if p.qty != 0 && sign(p.qty) == sign(delta) {
			// flipped through flat: the remainder opens at this price
			p.avg, p.openedAt = price, at
		}
	}

	if p.qty == 0 {
		delete(pm.positions, symbol)
		f.position = position{}
	} else {
		f.position = *p
	}
	return f
}
