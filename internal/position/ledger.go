// Package position maintains per-(account, symbol) holdings, cost basis
// and P&L from executed trades.
package position

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vidar/internal/common"
)

// MarkPriceFunc supplies an external reference price for revaluation.
// Returning false falls back to the fill price of the trade being
// applied.
type MarkPriceFunc func(symbol string) (decimal.Decimal, bool)

type key struct {
	account uuid.UUID
	symbol  string
}

// Ledger applies trades to positions. Each trade touches exactly two
// positions: the buyer's gains quantity, the seller's loses it.
type Ledger struct {
	mu        sync.RWMutex
	positions map[key]*common.Position
	markPrice MarkPriceFunc
}

func NewLedger(markPrice MarkPriceFunc) *Ledger {
	return &Ledger{
		positions: make(map[key]*common.Position),
		markPrice: markPrice,
	}
}

// ApplyTrade updates both sides of the trade and returns the two
// updated positions (buyer first).
func (l *Ledger) ApplyTrade(trade common.Trade, buyer, seller uuid.UUID) []common.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.applyLocked(buyer, trade.Symbol, trade.Quantity, trade.Price, trade.Timestamp)
	s := l.applyLocked(seller, trade.Symbol, trade.Quantity.Neg(), trade.Price, trade.Timestamp)
	return []common.Position{b, s}
}

// applyLocked folds one signed fill into a position.
//
// When the signed quantity crosses zero the old position is closed in
// full: P&L on the closed portion realizes at the old average price and
// the residual opens a fresh cost basis at the fill price. Closing to
// exactly zero realizes fully and zeroes the basis.
func (l *Ledger) applyLocked(account uuid.UUID, symbol string, delta, px decimal.Decimal, at time.Time) common.Position {
	k := key{account: account, symbol: symbol}
	pos, ok := l.positions[k]
	if !ok {
		pos = &common.Position{AccountID: account, Symbol: symbol}
		l.positions[k] = pos
	}

	oldQty := pos.Quantity
	newQty := oldQty.Add(delta)

	switch {
	case oldQty.IsZero():
		pos.AveragePrice = px
	case newQty.IsZero():
		pos.RealizedPnL = pos.RealizedPnL.Add(px.Sub(pos.AveragePrice).Mul(oldQty))
		pos.AveragePrice = decimal.Zero
	case newQty.Sign() != oldQty.Sign():
		// Flip: the entire old position closes at the old basis, the
		// residual re-seeds at the fill price.
		pos.RealizedPnL = pos.RealizedPnL.Add(px.Sub(pos.AveragePrice).Mul(oldQty))
		pos.AveragePrice = px
	case delta.Sign() == oldQty.Sign():
		// Increase: reweight the basis over the larger position.
		totalCost := oldQty.Abs().Mul(pos.AveragePrice).Add(delta.Abs().Mul(px))
		pos.AveragePrice = totalCost.Div(newQty.Abs())
	default:
		// Partial close: realize on the closed portion, basis stays.
		pos.RealizedPnL = pos.RealizedPnL.Add(px.Sub(pos.AveragePrice).Mul(delta.Neg()))
	}

	pos.Quantity = newQty
	pos.LastUpdated = at

	mark := px
	if l.markPrice != nil {
		if m, ok := l.markPrice(symbol); ok {
			mark = m
		}
	}
	pos.MarketValue = newQty.Mul(mark)
	pos.UnrealizedPnL = mark.Sub(pos.AveragePrice).Mul(newQty)

	return *pos
}

// Position returns the account's holding in symbol, if any.
func (l *Ledger) Position(account uuid.UUID, symbol string) (common.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[key{account: account, symbol: symbol}]
	if !ok {
		return common.Position{}, false
	}
	return *pos, true
}

// Positions lists holdings, filtered to one account when given.
func (l *Ledger) Positions(account *uuid.UUID) []common.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]common.Position, 0, len(l.positions))
	for k, pos := range l.positions {
		if account != nil && k.account != *account {
			continue
		}
		out = append(out, *pos)
	}
	return out
}

// PortfolioValue sums the account's market values.
func (l *Ledger) PortfolioValue(account uuid.UUID) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for k, pos := range l.positions {
		if k.account == account {
			total = total.Add(pos.MarketValue)
		}
	}
	return total
}

// TotalPnL sums the account's unrealized and realized P&L.
func (l *Ledger) TotalPnL(account uuid.UUID) (unrealized, realized decimal.Decimal) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	unrealized, realized = decimal.Zero, decimal.Zero
	for k, pos := range l.positions {
		if k.account == account {
			unrealized = unrealized.Add(pos.UnrealizedPnL)
			realized = realized.Add(pos.RealizedPnL)
		}
	}
	return unrealized, realized
}
