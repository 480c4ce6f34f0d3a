package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is the immutable record of a single fill between two orders.
// Quantity and Price are strictly positive; the buyer and seller order
// ids always differ.
type Trade struct {
	ID            uuid.UUID       //
	Symbol        string          //
	BuyerOrderID  uuid.UUID       //
	SellerOrderID uuid.UUID       //
	Quantity      decimal.Decimal //
	Price         decimal.Decimal //
	Timestamp     time.Time       //
	Kind          TradeKind       //
}

func (t Trade) String() string {
	return fmt.Sprintf("%s %s %s @ %s (buyer %s, seller %s)",
		t.ID, t.Symbol, t.Quantity, t.Price, t.BuyerOrderID, t.SellerOrderID)
}

// Position is the per-(account, symbol) holding. Quantity is signed:
// positive long, negative short. AveragePrice is the open cost basis and
// is zero when the position is flat.
type Position struct {
	AccountID     uuid.UUID       //
	Symbol        string          //
	Quantity      decimal.Decimal // Signed holding
	AveragePrice  decimal.Decimal // Cost basis of the open quantity
	MarketValue   decimal.Decimal // Quantity * mark price
	UnrealizedPnL decimal.Decimal // (mark - basis) * quantity
	RealizedPnL   decimal.Decimal // P&L banked by closing fills
	LastUpdated   time.Time       //
}

// RiskLimits are the per-account pre-trade controls. Accounts with no
// registered limits get the documented defaults; a registered field left
// at zero is a zero limit, not a default.
type RiskLimits struct {
	AccountID          uuid.UUID       //
	MaxPositionSize    decimal.Decimal //
	MaxOrderValue      decimal.Decimal //
	MaxDailyLoss       decimal.Decimal //
	ConcentrationLimit decimal.Decimal // Fraction in [0, 1]
	VaRLimit           decimal.Decimal //
}

// PriceLevelSnapshot is one aggregated depth row of a book snapshot.
type PriceLevelSnapshot struct {
	Price      decimal.Decimal //
	Quantity   decimal.Decimal // Sum of resting remaining quantity at Price
	OrderCount int             //
}

// BookSnapshot is a point-in-time aggregated view of one symbol's book,
// bids descending and asks ascending.
type BookSnapshot struct {
	Symbol     string
	Bids       []PriceLevelSnapshot
	Asks       []PriceLevelSnapshot
	LastUpdate time.Time
}
