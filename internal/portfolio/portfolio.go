// Package portfolio tracks cash, positions, and the trade log. The ledger
// is the single authority on financial state; all mutations go through Buy,
// Sell, Reset, or Restore and are atomic with respect to ledger state.
package portfolio

import (
	"log"
	"sync"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is an open holding. A position with zero quantity is removed,
// never retained.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity int     `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// Trade is an immutable record of a completed operation. Append order is
// time order.
type Trade struct {
	Timestamp   time.Time `json:"timestamp"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    int       `json:"quantity"`
	Price       float64   `json:"price"`
	RealizedPnL float64   `json:"realized_pnl"`
	Reason      string    `json:"reason"`
}

// PriceFn supplies current prices for valuation. ok=false means the price
// is unavailable and the caller falls back to the position's average cost.
type PriceFn func(symbol string) (price float64, ok bool)

// PositionView is a valued position inside a snapshot.
type PositionView struct {
	Position
	CurrentPrice float64 `json:"current_price"`
	MarketValue  float64 `json:"market_value"`
	Return       float64 `json:"return"`
}

// Snapshot is an immutable copy of ledger state for readers outside the
// simulation worker.
type Snapshot struct {
	Cash           float64                 `json:"cash"`
	InitialCapital float64                 `json:"initial_capital"`
	TotalValue     float64                 `json:"total_value"`
	Returns        float64                 `json:"returns"`
	Positions      map[string]PositionView `json:"positions"`
	Trades         []Trade                 `json:"trades"`
	LastUpdate     time.Time               `json:"last_update"`
}

// Ledger is the portfolio state machine.
type Ledger struct {
	mu             sync.Mutex
	cash           float64
	initialCapital float64
	positions      map[string]Position
	trades         []Trade

	sizeLimit float64 // max fraction of total value per symbol
	minLot    int

	now func() time.Time
}

func NewLedger(initialCapital, sizeLimit float64, minLot int) *Ledger {
	return &Ledger{
		cash:           initialCapital,
		initialCapital: initialCapital,
		positions:      make(map[string]Position),
		sizeLimit:      sizeLimit,
		minLot:         minLot,
		now:            time.Now,
	}
}

func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

// TotalValue is cash plus the mark-to-market value of every position,
// falling back to average cost for symbols without a current price.
func (l *Ledger) TotalValue(price PriceFn) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalValueLocked(price)
}

func (l *Ledger) totalValueLocked(price PriceFn) float64 {
	total := l.cash
	for sym, pos := range l.positions {
		p := pos.AvgCost
		if price != nil {
			if v, ok := price(sym); ok {
				p = v
			}
		}
		total += float64(pos.Quantity) * p
	}
	return total
}

// Buy debits cash and merges into the position at weighted-average cost.
// When the requested quantity is unaffordable it shrinks to the largest
// affordable quantity, and further to the position-size ceiling; the order
// is rejected outright only when the shrunk quantity falls below the
// minimum lot. Returns false with no mutation on rejection.
func (l *Ledger) Buy(symbol string, quantity int, price float64, reason string) bool {
	if quantity <= 0 || price <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cost := float64(quantity) * price
	if cost > l.cash {
		quantity = int(l.cash / price)
		if quantity < l.minLot {
			log.Printf("buy %s rejected: cash %.2f below minimum lot at %.2f", symbol, l.cash, price)
			return false
		}
		cost = float64(quantity) * price
	}

	// Enforce the position-size ceiling against total portfolio value.
	// The ceiling bounds the whole holding, so any shares already held
	// count toward it, valued at the execution price like the buy itself.
	total := l.totalValueLocked(func(sym string) (float64, bool) {
		if sym == symbol {
			return price, true
		}
		return 0, false
	})
	var held float64
	if pos, ok := l.positions[symbol]; ok {
		held = float64(pos.Quantity) * price
	}
	if total > 0 && (held+cost)/total > l.sizeLimit {
		maxQuantity := int((total*l.sizeLimit - held) / price)
		if maxQuantity < l.minLot {
			log.Printf("buy %s rejected: size ceiling leaves less than minimum lot", symbol)
			return false
		}
		quantity = maxQuantity
		cost = float64(quantity) * price
	}

	l.cash -= cost
	if pos, ok := l.positions[symbol]; ok {
		totalQty := pos.Quantity + quantity
		totalCost := float64(pos.Quantity)*pos.AvgCost + cost
		l.positions[symbol] = Position{
			Symbol:   symbol,
			Quantity: totalQty,
			AvgCost:  totalCost / float64(totalQty),
		}
	} else {
		l.positions[symbol] = Position{Symbol: symbol, Quantity: quantity, AvgCost: price}
	}

	l.trades = append(l.trades, Trade{
		Timestamp: l.now(),
		Symbol:    symbol,
		Side:      SideBuy,
		Quantity:  quantity,
		Price:     price,
		Reason:    reason,
	})
	return true
}

// Sell credits proceeds and realizes P/L against average cost. Quantity is
// clamped to the held amount; selling more than held fully liquidates, never
// more. Returns false when the symbol is not held.
func (l *Ledger) Sell(symbol string, quantity int, price float64, reason string) bool {
	if quantity <= 0 || price <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		log.Printf("sell %s rejected: no position", symbol)
		return false
	}
	if quantity > pos.Quantity {
		quantity = pos.Quantity
	}

	proceeds := float64(quantity) * price
	realized := (price - pos.AvgCost) * float64(quantity)
	l.cash += proceeds

	remaining := pos.Quantity - quantity
	if remaining > 0 {
		pos.Quantity = remaining
		l.positions[symbol] = pos
	} else {
		delete(l.positions, symbol)
	}

	l.trades = append(l.trades, Trade{
		Timestamp:   l.now(),
		Symbol:      symbol,
		Side:        SideSell,
		Quantity:    quantity,
		Price:       price,
		RealizedPnL: realized,
		Reason:      reason,
	})
	return true
}

// Reset clears positions and trade history and sets cash to newCapital.
func (l *Ledger) Reset(newCapital float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = newCapital
	l.initialCapital = newCapital
	l.positions = make(map[string]Position)
	l.trades = nil
}

// Restore rehydrates the ledger from a persisted snapshot.
func (l *Ledger) Restore(cash, initialCapital float64, positions []Position, trades []Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = cash
	l.initialCapital = initialCapital
	l.positions = make(map[string]Position, len(positions))
	for _, pos := range positions {
		if pos.Quantity > 0 {
			l.positions[pos.Symbol] = pos
		}
	}
	l.trades = append([]Trade(nil), trades...)
}

// Positions returns a copy of the open positions.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	return out
}

// Trades returns a copy of the trade log in append order.
func (l *Ledger) Trades() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Trade(nil), l.trades...)
}

// Snapshot captures an immutable, fully valued view of the ledger.
func (l *Ledger) Snapshot(price PriceFn) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	views := make(map[string]PositionView, len(l.positions))
	total := l.cash
	for sym, pos := range l.positions {
		current := pos.AvgCost
		if price != nil {
			if v, ok := price(sym); ok {
				current = v
			}
		}
		value := float64(pos.Quantity) * current
		total += value
		ret := 0.0
		if pos.AvgCost > 0 {
			ret = (current - pos.AvgCost) / pos.AvgCost
		}
		views[sym] = PositionView{
			Position:     pos,
			CurrentPrice: current,
			MarketValue:  value,
			Return:       ret,
		}
	}

	returns := 0.0
	if l.initialCapital > 0 {
		returns = (total - l.initialCapital) / l.initialCapital
	}

	return Snapshot{
		Cash:           l.cash,
		InitialCapital: l.initialCapital,
		TotalValue:     total,
		Returns:        returns,
		Positions:      views,
		Trades:         append([]Trade(nil), l.trades...),
		LastUpdate:     l.now(),
	}
}
