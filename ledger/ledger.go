package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInsufficientCapital is returned when a debit would drive cash negative.
// Callers are expected to pre-check through the sizer; hitting this on a
// sized order means the sizing path has a defect.
var ErrInsufficientCapital = errors.New("insufficient capital")

// CapitalLedger owns the cash balance and the open positions of one
// portfolio and enforces conservation of value: currency only moves between
// cash and position cost basis, never appears or disappears.
//
// All currency math is decimal. Share counts are whole int64, so cost
// portions of partial closes are exact multiples of the entry price and the
// conservation invariant holds without rounding drift.
type CapitalLedger struct {
	cash           decimal.Decimal
	initialCapital decimal.Decimal
	positions      map[string]*Position
}

// NewCapitalLedger creates a ledger funded with initialCapital.
func NewCapitalLedger(initialCapital decimal.Decimal) *CapitalLedger {
	return &CapitalLedger{
		cash:           initialCapital,
		initialCapital: initialCapital,
		positions:      make(map[string]*Position),
	}
}

// Cash returns the current free cash balance.
func (l *CapitalLedger) Cash() decimal.Decimal { return l.cash }

// InitialCapital returns the capital the ledger started with.
func (l *CapitalLedger) InitialCapital() decimal.Decimal { return l.initialCapital }

// Reserve computes the cost basis of committing shares at price.
func (l *CapitalLedger) Reserve(shares int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(shares))
}

// Debit removes amount from cash. Fails with ErrInsufficientCapital rather
// than letting the balance go negative.
func (l *CapitalLedger) Debit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		panic(fmt.Sprintf("ledger: negative debit %s", amount))
	}
	if amount.GreaterThan(l.cash) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCapital, amount, l.cash)
	}
	l.cash = l.cash.Sub(amount)
	return nil
}

// Credit adds amount back to cash. Exit proceeds may be negative when the
// modeled fee exceeds a dust-sized fill, so no sign check is applied.
func (l *CapitalLedger) Credit(amount decimal.Decimal) {
	l.cash = l.cash.Add(amount)
}

// Holds reports whether a position is open for symbol.
func (l *CapitalLedger) Holds(symbol string) bool {
	_, ok := l.positions[symbol]
	return ok
}

// Position returns the open position for symbol, or nil.
func (l *CapitalLedger) Position(symbol string) *Position {
	return l.positions[symbol]
}

// Positions exposes the live position map. Callers iterate it read-only and
// apply mutations after iteration completes.
func (l *CapitalLedger) Positions() map[string]*Position {
	return l.positions
}

// OpenPositionCount returns how many positions are currently held.
func (l *CapitalLedger) OpenPositionCount() int { return len(l.positions) }

// AddPosition inserts a newly opened position. The symbol must not already
// be held; the portfolio checks that before sizing.
func (l *CapitalLedger) AddPosition(p *Position) {
	if _, ok := l.positions[p.Symbol]; ok {
		panic(fmt.Sprintf("ledger: duplicate position insert for %s", p.Symbol))
	}
	l.positions[p.Symbol] = p
}

// RemovePosition deletes a fully closed position from the map.
func (l *CapitalLedger) RemovePosition(symbol string) {
	p, ok := l.positions[symbol]
	if !ok {
		return
	}
	if p.RemainingShares != 0 {
		panic(fmt.Sprintf("ledger: removing %s with %d shares remaining", symbol, p.RemainingShares))
	}
	delete(l.positions, symbol)
}

// ReducePosition books a close of shares at the position's entry cost,
// returning the cost portion released. RemainingShares and
// CostBasisRemaining are kept exactly in step: the released portion is
// shares * entryPrice, so the remaining basis is always remaining * entry.
func (l *CapitalLedger) ReducePosition(p *Position, shares int64) decimal.Decimal {
	if shares <= 0 || shares > p.RemainingShares {
		panic(fmt.Sprintf("ledger: invalid reduction of %d from %d shares in %s",
			shares, p.RemainingShares, p.Symbol))
	}
	costPortion := p.EntryPrice.Mul(decimal.NewFromInt(shares))
	p.RemainingShares -= shares
	p.CostBasisRemaining = p.CostBasisRemaining.Sub(costPortion)
	if p.RemainingShares == 0 && !p.CostBasisRemaining.IsZero() {
		panic(fmt.Sprintf("ledger: %s fully closed with residual basis %s",
			p.Symbol, p.CostBasisRemaining))
	}
	return costPortion
}

// DeployedCapital sums the remaining cost basis of every open position.
func (l *CapitalLedger) DeployedCapital() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		total = total.Add(p.CostBasisRemaining)
	}
	return total
}

// BookValue is cash plus deployed capital, independent of live prices.
func (l *CapitalLedger) BookValue() decimal.Decimal {
	return l.cash.Add(l.DeployedCapital())
}

// Restore rebuilds the ledger from persisted state.
func (l *CapitalLedger) Restore(cash decimal.Decimal, positions map[string]*Position) {
	l.cash = cash
	l.positions = positions
	if l.positions == nil {
		l.positions = make(map[string]*Position)
	}
}
