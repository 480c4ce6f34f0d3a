package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a buy or sell instruction for a single instrument. Identity
// fields are immutable after ingest; the fill state (FilledQuantity,
// RemainingQuantity, Status) mutates as the order executes.
//
// FilledQuantity + RemainingQuantity = Quantity holds at all times.
type Order struct {
	ID                uuid.UUID        // Engine-assigned order id
	ClientOrderID     string           // Submitter-chosen opaque id, uniqueness not enforced
	Symbol            string           // Instrument identifier
	Side              Side             // Order side
	Type              OrderType        // Limit, market, or a recognised richer type
	Quantity          decimal.Decimal  // Total volume requested
	Price             *decimal.Decimal // Limit price, nil for market orders
	FilledQuantity    decimal.Decimal  // Volume executed so far
	RemainingQuantity decimal.Decimal  // Volume still open
	Status            OrderStatus      //
	Timestamp         time.Time        // Server-assigned ingest time
	AccountID         uuid.UUID        // Account the order trades for
	UserID            uuid.UUID        // Subject who submitted the order
	TimeInForce       TimeInForce      //
}

// Validate checks the order's shape before it is allowed anywhere near
// the book. It does not consult any engine state.
func (o *Order) Validate() error {
	if o.Symbol == "" {
		return &InvalidOrderError{Detail: "symbol cannot be empty"}
	}
	if !o.Quantity.IsPositive() {
		return &InvalidOrderError{Detail: "quantity must be positive"}
	}
	if o.Price != nil && !o.Price.IsPositive() {
		return &InvalidOrderError{Detail: "price must be positive"}
	}
	if o.Type == MarketOrder {
		if o.Price != nil {
			return &InvalidOrderError{Detail: "market orders cannot have a price"}
		}
	} else if o.Price == nil {
		return &InvalidOrderError{Detail: fmt.Sprintf("%s orders must have a price", o.Type)}
	}
	return nil
}

// Fill applies an execution of qty to the order and moves its status.
// The caller guarantees qty <= RemainingQuantity.
func (o *Order) Fill(qty decimal.Decimal) {
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	o.RemainingQuantity = o.RemainingQuantity.Sub(qty)
	if o.RemainingQuantity.IsZero() {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}

func (o Order) String() string {
	price := "market"
	if o.Price != nil {
		price = o.Price.String()
	}
	return fmt.Sprintf("%s %s %s %s @ %s (%s/%s filled, %s)",
		o.ID, o.Side, o.Symbol, o.Quantity, price,
		o.FilledQuantity, o.Quantity, o.Status)
}
