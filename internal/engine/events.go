package engine

import (
	"github.com/google/uuid"

	"vidar/internal/common"
)

// Event is the closed set of notifications the engine publishes.
// Subscribers may be absent or slow; publication never blocks a match.
type Event interface {
	isEvent()
}

// OrderSubmitted fires once per accepted submission, after matching and
// position updates complete.
type OrderSubmitted struct {
	Order common.Order
}

// OrderCancelled fires when a resting order is removed by request.
type OrderCancelled struct {
	OrderID uuid.UUID
}

// OrderFilled fires once per trade for each of the two orders involved,
// aggressor first.
type OrderFilled struct {
	OrderID uuid.UUID
	Trade   common.Trade
}

// TradeExecuted fires once per trade, before the per-order fills.
type TradeExecuted struct {
	Trade common.Trade
}

// PositionUpdated fires for each position a trade moved.
type PositionUpdated struct {
	Position common.Position
}

// RiskViolation fires when the gate rejects an order.
type RiskViolation struct {
	AccountID uuid.UUID
	Reason    string
}

func (OrderSubmitted) isEvent()  {}
func (OrderCancelled) isEvent()  {}
func (OrderFilled) isEvent()     {}
func (TradeExecuted) isEvent()   {}
func (PositionUpdated) isEvent() {}
func (RiskViolation) isEvent()   {}
