// Package engine wires the order book, position ledger and risk gate
// into the submission pipeline: validate, risk check, match, settle,
// publish.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"vidar/internal/book"
	"vidar/internal/common"
	"vidar/internal/position"
	"vidar/internal/risk"
)

// Engine is the facade over the matching core. It owns the
// authoritative order registry, the recent-trade buffer and the event
// bus.
type Engine struct {
	books  *book.Set
	ledger *position.Ledger
	gate   *risk.Gate

	registryMu sync.RWMutex
	registry   map[uuid.UUID]*common.Order

	trades *tradeLog
	events *bus
}

// New builds an engine. markPrice may be nil, in which case positions
// revalue at their latest fill price.
func New(markPrice position.MarkPriceFunc) *Engine {
	books := book.NewSet()
	return &Engine{
		books:    books,
		ledger:   position.NewLedger(markPrice),
		gate:     risk.NewGate(books),
		registry: make(map[uuid.UUID]*common.Order),
		trades:   newTradeLog(tradeLogCapacity),
		events:   newBus(),
	}
}

// SubmitOrder runs one order through the pipeline and returns its
// engine-assigned id. Validation and risk failures reject before any
// state is touched: the order is not registered, no trade is emitted
// and no position moves.
func (e *Engine) SubmitOrder(order common.Order) (uuid.UUID, error) {
	if err := order.Validate(); err != nil {
		return uuid.Nil, err
	}
	if err := e.gate.CheckOrder(&order); err != nil {
		e.events.Publish(RiskViolation{AccountID: order.AccountID, Reason: err.Error()})
		return uuid.Nil, err
	}

	order.ID = uuid.New()
	order.Timestamp = time.Now()
	order.FilledQuantity = decimal.Zero
	order.RemainingQuantity = order.Quantity
	order.Status = common.StatusPending

	o := &order
	e.registryMu.Lock()
	e.registry[o.ID] = o
	e.registryMu.Unlock()

	trades, err := e.books.Process(o)
	if err != nil {
		// Matching aborted before emitting anything: drop the
		// registration and surface the inconsistency.
		e.registryMu.Lock()
		delete(e.registry, o.ID)
		e.registryMu.Unlock()
		return uuid.Nil, err
	}

	settleErr := e.settle(o, trades)

	log.Info().
		Str("orderID", o.ID.String()).
		Str("symbol", o.Symbol).
		Str("status", o.Status.String()).
		Int("trades", len(trades)).
		Msg("order submitted")

	var snapshot common.Order
	e.books.View(o.Symbol, func() {
		snapshot = *o
	})
	e.events.Publish(OrderSubmitted{Order: snapshot})
	return o.ID, settleErr
}

// settle records trades, applies them to the ledger and publishes the
// per-trade events in order: TradeExecuted, OrderFilled for the
// aggressor, OrderFilled for the resting order, then the position
// updates. Trades are authoritative: a ledger discrepancy is reported
// but never rolled back.
func (e *Engine) settle(aggressor *common.Order, trades []common.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	e.trades.Append(trades...)

	var settleErr error
	for _, trade := range trades {
		restingID := trade.SellerOrderID
		if restingID == aggressor.ID {
			restingID = trade.BuyerOrderID
		}

		e.events.Publish(TradeExecuted{Trade: trade})
		e.events.Publish(OrderFilled{OrderID: aggressor.ID, Trade: trade})
		e.events.Publish(OrderFilled{OrderID: restingID, Trade: trade})

		buyer, okB := e.lookup(trade.BuyerOrderID)
		seller, okS := e.lookup(trade.SellerOrderID)
		if !okB || !okS {
			log.Error().
				Str("tradeID", trade.ID.String()).
				Msg("trade references an unregistered order")
			settleErr = &common.InternalError{Detail: "trade references an unregistered order"}
			continue
		}

		for _, pos := range e.ledger.ApplyTrade(trade, buyer.AccountID, seller.AccountID) {
			e.events.Publish(PositionUpdated{Position: pos})
		}

		log.Debug().
			Str("tradeID", trade.ID.String()).
			Str("symbol", trade.Symbol).
			Str("quantity", trade.Quantity.String()).
			Str("price", trade.Price.String()).
			Msg("trade executed")
	}
	return settleErr
}

func (e *Engine) lookup(orderID uuid.UUID) (*common.Order, bool) {
	e.registryMu.RLock()
	defer e.registryMu.RUnlock()
	o, ok := e.registry[orderID]
	return o, ok
}

// CancelOrder removes a resting order. It reports true only when this
// call took the order off the book; cancelling an unknown, filled or
// already-cancelled order reports false without error.
func (e *Engine) CancelOrder(orderID uuid.UUID) (bool, error) {
	removed := e.books.Remove(orderID)
	if removed == nil {
		return false, nil
	}

	e.books.View(removed.Symbol, func() {
		removed.Status = common.StatusCancelled
	})

	log.Info().
		Str("orderID", orderID.String()).
		Str("symbol", removed.Symbol).
		Msg("order cancelled")

	e.events.Publish(OrderCancelled{OrderID: orderID})
	return true, nil
}

// GetOrder returns a copy of the registered order.
func (e *Engine) GetOrder(orderID uuid.UUID) (common.Order, error) {
	o, ok := e.lookup(orderID)
	if !ok {
		return common.Order{}, common.ErrOrderNotFound
	}

	var snapshot common.Order
	e.books.View(o.Symbol, func() {
		snapshot = *o
	})
	return snapshot, nil
}

// Orders returns copies of every registered order.
func (e *Engine) Orders() []common.Order {
	e.registryMu.RLock()
	refs := make([]*common.Order, 0, len(e.registry))
	for _, o := range e.registry {
		refs = append(refs, o)
	}
	e.registryMu.RUnlock()

	out := make([]common.Order, 0, len(refs))
	for _, o := range refs {
		e.books.View(o.Symbol, func() {
			out = append(out, *o)
		})
	}
	return out
}

// Trades returns the recent-trade buffer, oldest first.
func (e *Engine) Trades() []common.Trade {
	return e.trades.List()
}

// Orderbook returns the symbol's aggregated depth snapshot.
func (e *Engine) Orderbook(symbol string) common.BookSnapshot {
	return e.books.Snapshot(symbol)
}

// Positions lists positions, filtered to one account when given.
func (e *Engine) Positions(account *uuid.UUID) []common.Position {
	return e.ledger.Positions(account)
}

// SetRiskLimits registers per-account pre-trade limits.
func (e *Engine) SetRiskLimits(limits common.RiskLimits) {
	e.gate.SetLimits(limits)
}

// SubscribeEvents registers an event subscriber. The returned cancel
// releases it.
func (e *Engine) SubscribeEvents() (<-chan Event, func()) {
	return e.events.Subscribe()
}
