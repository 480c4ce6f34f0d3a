package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidar/internal/common"
)

func assertTrade(t *testing.T, trade common.Trade, qty, price string) {
	t.Helper()
	assert.True(t, trade.Quantity.Equal(dec(qty)),
		"trade quantity %s, want %s", trade.Quantity, qty)
	assert.True(t, trade.Price.Equal(dec(price)),
		"trade price %s, want %s", trade.Price, price)
}

func TestSimpleCross(t *testing.T) {
	s := NewSet()

	s1 := limitOrder(common.Sell, "GSEC10Y", "98.50", "100")
	rest(t, s, s1)

	buy := limitOrder(common.Buy, "GSEC10Y", "98.50", "100")
	trades, err := s.Process(buy)
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assertTrade(t, trades[0], "100", "98.50")
	assert.Equal(t, buy.ID, trades[0].BuyerOrderID)
	assert.Equal(t, s1.ID, trades[0].SellerOrderID)

	assert.Equal(t, common.StatusFilled, buy.Status)
	assert.Equal(t, common.StatusFilled, s1.Status)
	assert.Equal(t, 0, s.RestingCount("GSEC10Y"))
}

func TestPriceTimePriority(t *testing.T) {
	s := NewSet()

	s1 := limitOrder(common.Sell, "GSEC10Y", "98.50", "50")
	s2 := limitOrder(common.Sell, "GSEC10Y", "98.50", "50")
	rest(t, s, s1)
	rest(t, s, s2)

	buy := limitOrder(common.Buy, "GSEC10Y", "98.50", "75")
	trades, err := s.Process(buy)
	require.NoError(t, err)

	require.Len(t, trades, 2)
	assertTrade(t, trades[0], "50", "98.50")
	assert.Equal(t, s1.ID, trades[0].SellerOrderID, "earlier order fills first")
	assertTrade(t, trades[1], "25", "98.50")
	assert.Equal(t, s2.ID, trades[1].SellerOrderID)

	assert.Equal(t, common.StatusFilled, s1.Status)
	assert.Equal(t, common.StatusPartiallyFilled, s2.Status)
	assert.True(t, s2.RemainingQuantity.Equal(dec("25")))

	// The partial stays at the head of the level with its priority.
	level, ok := s.book("GSEC10Y").asks.Min()
	require.True(t, ok)
	require.NotEmpty(t, level.Orders)
	assert.Equal(t, s2.ID, level.Orders[0].Order.ID)
}

func TestPriceImprovement(t *testing.T) {
	s := NewSet()

	rest(t, s, limitOrder(common.Sell, "GSEC10Y", "98.40", "100"))

	buy := limitOrder(common.Buy, "GSEC10Y", "98.60", "100")
	trades, err := s.Process(buy)
	require.NoError(t, err)

	require.Len(t, trades, 1)
	// Executes at the resting price, not the aggressor's limit.
	assertTrade(t, trades[0], "100", "98.40")
}

func TestMarketOrderPartialFill(t *testing.T) {
	s := NewSet()

	rest(t, s, limitOrder(common.Sell, "GSEC10Y", "99.00", "30"))

	buy := marketOrder(common.Buy, "GSEC10Y", "100")
	trades, err := s.Process(buy)
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assertTrade(t, trades[0], "30", "99.00")

	// The market residual is dropped, never rested.
	assert.True(t, buy.FilledQuantity.Equal(dec("30")))
	assert.True(t, buy.RemainingQuantity.Equal(dec("70")))
	assert.Equal(t, common.StatusCancelled, buy.Status)
	assert.Equal(t, 0, s.RestingCount("GSEC10Y"))
}

func TestMarketOrderEmptyBook(t *testing.T) {
	s := NewSet()

	buy := marketOrder(common.Buy, "GSEC10Y", "100")
	trades, err := s.Process(buy)
	require.NoError(t, err)

	assert.Empty(t, trades)
	assert.Equal(t, common.StatusCancelled, buy.Status)
	assert.Equal(t, 0, s.RestingCount("GSEC10Y"))
}

func TestWalkMultipleLevels(t *testing.T) {
	s := NewSet()

	rest(t, s, limitOrder(common.Sell, "GSEC10Y", "99.00", "10"))
	rest(t, s, limitOrder(common.Sell, "GSEC10Y", "99.10", "10"))
	rest(t, s, limitOrder(common.Sell, "GSEC10Y", "99.20", "10"))

	buy := limitOrder(common.Buy, "GSEC10Y", "99.15", "25")
	trades, err := s.Process(buy)
	require.NoError(t, err)

	// 99.20 is beyond the limit: the walk stops and the remainder
	// rests at 99.15.
	require.Len(t, trades, 2)
	assertTrade(t, trades[0], "10", "99.00")
	assertTrade(t, trades[1], "10", "99.10")

	assert.Equal(t, common.StatusPartiallyFilled, buy.Status)
	assert.True(t, buy.RemainingQuantity.Equal(dec("5")))

	bid, ok := s.BestBid("GSEC10Y")
	require.True(t, ok)
	assert.True(t, bid.Equal(dec("99.15")))
}

func TestCancelRestingPartial(t *testing.T) {
	s := NewSet()

	s1 := limitOrder(common.Sell, "GSEC10Y", "98.50", "100")
	rest(t, s, s1)

	buy := limitOrder(common.Buy, "GSEC10Y", "98.50", "40")
	trades, err := s.Process(buy)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, s1.RemainingQuantity.Equal(dec("60")))

	// Cancelling the partial removes only the unfilled remainder.
	removed := s.Remove(s1.ID)
	require.NotNil(t, removed)
	assert.Equal(t, 0, s.RestingCount("GSEC10Y"))

	// A later buy finds nothing and rests.
	buy2 := limitOrder(common.Buy, "GSEC10Y", "98.50", "10")
	trades, err = s.Process(buy2)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 1, s.RestingCount("GSEC10Y"))
}

func TestSellAggressorSweepsBids(t *testing.T) {
	s := NewSet()

	b1 := limitOrder(common.Buy, "GSEC10Y", "99.00", "10")
	b2 := limitOrder(common.Buy, "GSEC10Y", "98.90", "10")
	rest(t, s, b1)
	rest(t, s, b2)

	sell := limitOrder(common.Sell, "GSEC10Y", "98.90", "15")
	trades, err := s.Process(sell)
	require.NoError(t, err)

	// Highest bid first, each at the resting price.
	require.Len(t, trades, 2)
	assertTrade(t, trades[0], "10", "99.00")
	assert.Equal(t, b1.ID, trades[0].BuyerOrderID)
	assertTrade(t, trades[1], "5", "98.90")
	assert.Equal(t, b2.ID, trades[1].BuyerOrderID)
	assert.Equal(t, sell.ID, trades[0].SellerOrderID)

	assert.Equal(t, common.StatusFilled, sell.Status)
	assert.True(t, b2.RemainingQuantity.Equal(dec("5")))
}

func TestNoCrossLeavesBookUncrossed(t *testing.T) {
	s := NewSet()

	rest(t, s, limitOrder(common.Sell, "GSEC10Y", "100.00", "10"))

	buy := limitOrder(common.Buy, "GSEC10Y", "99.00", "10")
	trades, err := s.Process(buy)
	require.NoError(t, err)
	assert.Empty(t, trades)

	// Best bid below best ask: stable book.
	bid, _ := s.BestBid("GSEC10Y")
	ask, _ := s.BestAsk("GSEC10Y")
	assert.True(t, bid.LessThan(ask))
}

func TestFillStateInvariant(t *testing.T) {
	s := NewSet()

	s1 := limitOrder(common.Sell, "GSEC10Y", "98.50", "70")
	rest(t, s, s1)

	buy := limitOrder(common.Buy, "GSEC10Y", "98.50", "40")
	_, err := s.Process(buy)
	require.NoError(t, err)

	for _, o := range []*common.Order{buy, s1} {
		assert.True(t, o.FilledQuantity.Add(o.RemainingQuantity).Equal(o.Quantity),
			"filled + remaining must equal quantity for %s", o.ID)
	}
}

func TestMarketBuyAgainstDeeperRestingSell(t *testing.T) {
	s := NewSet()

	s1 := limitOrder(common.Sell, "GSEC10Y", "99.00", "100")
	rest(t, s, s1)

	buy := marketOrder(common.Buy, "GSEC10Y", "30")
	trades, err := s.Process(buy)
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assertTrade(t, trades[0], "30", "99.00")
	assert.Equal(t, common.StatusFilled, buy.Status)
	assert.True(t, s1.RemainingQuantity.Equal(dec("70")))
	assert.Equal(t, 1, s.RestingCount("GSEC10Y"))
}
