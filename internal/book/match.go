package book

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vidar/internal/common"
)

// Process runs one order through the matching walk and, for a limit
// order with remaining quantity, rests it on the book. The symbol's
// book lock is held for the entire call, so two crossing orders on the
// same symbol are serialized in lock-acquisition order.
//
// Trades are returned in execution order. The incoming order leaves
// with status Filled, PartiallyFilled, Pending (a limit order that
// matched nothing and rests), or Cancelled (a market order's unfilled
// residual is dropped, never rested).
func (s *Set) Process(order *common.Order) ([]common.Trade, error) {
	b := s.book(order.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	trades, err := s.matchLocked(b, order)
	if err != nil {
		return nil, err
	}

	if order.RemainingQuantity.IsPositive() {
		if order.Type == common.MarketOrder {
			// Market orders never rest; the residual is dropped.
			order.Status = common.StatusCancelled
		} else {
			s.insertLocked(b, order)
		}
	}
	if len(trades) > 0 {
		b.lastUpdate = trades[len(trades)-1].Timestamp
	}
	return trades, nil
}

// matchLocked sweeps the opposite side while the incoming order crosses
// it, consuming resting entries in price-time priority. Caller holds
// the book lock.
func (s *Set) matchLocked(b *Book, incoming *common.Order) ([]common.Trade, error) {
	var trades []common.Trade
	levels := b.levels(incoming.Side.Opposite())

	for incoming.RemainingQuantity.IsPositive() {
		// Min is the best level for matching on either side: highest
		// bid, lowest ask.
		level, ok := levels.MinMut()
		if !ok {
			break
		}
		if !crosses(incoming, level.Price) {
			break
		}

		for len(level.Orders) > 0 && incoming.RemainingQuantity.IsPositive() {
			head := level.Orders[0]
			resting := head.Order

			fill := decimal.Min(incoming.RemainingQuantity, resting.RemainingQuantity)
			// Trades execute at the resting price: price improvement
			// goes to the aggressor.
			trade := common.Trade{
				ID:        uuid.New(),
				Symbol:    incoming.Symbol,
				Quantity:  fill,
				Price:     level.Price,
				Timestamp: time.Now(),
				Kind:      common.RegularTrade,
			}
			if incoming.Side == common.Buy {
				trade.BuyerOrderID = incoming.ID
				trade.SellerOrderID = resting.ID
			} else {
				trade.BuyerOrderID = resting.ID
				trade.SellerOrderID = incoming.ID
			}

			incoming.Fill(fill)
			resting.Fill(fill)
			if incoming.RemainingQuantity.IsNegative() || resting.RemainingQuantity.IsNegative() {
				return nil, &common.InternalError{Detail: "negative remaining quantity after fill"}
			}

			if resting.RemainingQuantity.IsZero() {
				// Fully consumed: leaves the book and the index in the
				// same step. A partial fill stays at the head of the
				// FIFO and keeps its priority.
				level.Orders = level.Orders[1:]
				s.dropIndexLocked(resting.ID)
			}

			trades = append(trades, trade)
		}

		if len(level.Orders) == 0 {
			levels.Delete(level)
		}
	}

	return trades, nil
}

// crosses reports whether the incoming order is willing to trade at the
// opposite level's price. Market orders never stop on price; a limit
// buy stops above its limit, a limit sell below it.
func crosses(incoming *common.Order, levelPrice decimal.Decimal) bool {
	if incoming.Price == nil {
		return true
	}
	if incoming.Side == common.Buy {
		return levelPrice.LessThanOrEqual(*incoming.Price)
	}
	return levelPrice.GreaterThanOrEqual(*incoming.Price)
}
