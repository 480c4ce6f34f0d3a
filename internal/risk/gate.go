// Package risk implements the pre-trade gate. Every order passes the
// checks here before it is allowed to touch the matching engine; the
// checks short-circuit on the first failure and never mutate book
// state.
package risk

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vidar/internal/common"
)

// Default limits applied to accounts that never registered their own.
var (
	DefaultMaxPositionSize    = decimal.NewFromInt(100_000_000)
	DefaultMaxOrderValue      = decimal.NewFromInt(50_000_000)
	DefaultMaxDailyLoss       = decimal.NewFromInt(1_000_000)
	DefaultConcentrationLimit = decimal.NewFromFloat(0.25)
	DefaultVaRLimit           = decimal.NewFromInt(5_000_000)
)

// QuoteSource supplies a reference price for orders that carry none.
// The book's best opposite quote is the natural source.
type QuoteSource interface {
	BestQuote(symbol string, side common.Side) (decimal.Decimal, bool)
}

// Gate holds per-account limits and evaluates orders against them.
type Gate struct {
	mu     sync.RWMutex
	limits map[uuid.UUID]common.RiskLimits
	quotes QuoteSource
}

func NewGate(quotes QuoteSource) *Gate {
	return &Gate{
		limits: make(map[uuid.UUID]common.RiskLimits),
		quotes: quotes,
	}
}

// SetLimits registers limits for an account, replacing any previous
// registration.
func (g *Gate) SetLimits(limits common.RiskLimits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits[limits.AccountID] = limits
}

// Limits returns the account's limits, falling back to the defaults for
// unregistered accounts.
func (g *Gate) Limits(account uuid.UUID) common.RiskLimits {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if limits, ok := g.limits[account]; ok {
		return limits
	}
	return common.RiskLimits{
		AccountID:          account,
		MaxPositionSize:    DefaultMaxPositionSize,
		MaxOrderValue:      DefaultMaxOrderValue,
		MaxDailyLoss:       DefaultMaxDailyLoss,
		ConcentrationLimit: DefaultConcentrationLimit,
		VaRLimit:           DefaultVaRLimit,
	}
}

// CheckOrder runs the pre-trade checks, short-circuiting on the first
// failure.
func (g *Gate) CheckOrder(order *common.Order) error {
	limits := g.Limits(order.AccountID)

	if err := g.checkOrderValue(order, limits); err != nil {
		return err
	}
	if err := g.checkPositionSize(order, limits); err != nil {
		return err
	}
	if err := g.checkConcentration(order, limits); err != nil {
		return err
	}
	if err := g.checkDailyLoss(order, limits); err != nil {
		return err
	}
	return g.checkMarketHours(order)
}

// checkOrderValue bounds quantity * price. Market orders substitute the
// best opposite quote when the book has one; against an empty book the
// reference is zero and the check passes, the order's value being
// bounded by whatever liquidity it finds.
func (g *Gate) checkOrderValue(order *common.Order, limits common.RiskLimits) error {
	price := decimal.Zero
	switch {
	case order.Price != nil:
		price = *order.Price
	case g.quotes != nil:
		if ref, ok := g.quotes.BestQuote(order.Symbol, order.Side); ok {
			price = ref
		}
	}

	value := order.Quantity.Mul(price)
	if value.GreaterThan(limits.MaxOrderValue) {
		return &common.RiskLimitError{
			Detail: fmt.Sprintf("order value %s exceeds limit %s", value, limits.MaxOrderValue),
		}
	}
	return nil
}

func (g *Gate) checkPositionSize(order *common.Order, limits common.RiskLimits) error {
	if order.Quantity.GreaterThan(limits.MaxPositionSize) {
		return &common.RiskLimitError{
			Detail: fmt.Sprintf("order quantity %s exceeds position limit %s",
				order.Quantity, limits.MaxPositionSize),
		}
	}
	return nil
}

// checkConcentration is an extension point: portfolio concentration by
// issuer, sector and rating would be evaluated here.
func (g *Gate) checkConcentration(_ *common.Order, _ common.RiskLimits) error {
	return nil
}

// checkDailyLoss is an extension point: the account's day P&L would be
// evaluated here.
func (g *Gate) checkDailyLoss(_ *common.Order, _ common.RiskLimits) error {
	return nil
}

// checkMarketHours is an extension point: the trading calendar would be
// evaluated here.
func (g *Gate) checkMarketHours(_ *common.Order) error {
	return nil
}

// VaR reports the account's value-at-risk. Placeholder pending a real
// risk model.
func (g *Gate) VaR(_ uuid.UUID) decimal.Decimal {
	return decimal.NewFromInt(1_000_000)
}
