package position

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidar/internal/common"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(symbol, qty, price string) common.Trade {
	return common.Trade{
		ID:            uuid.New(),
		Symbol:        symbol,
		BuyerOrderID:  uuid.New(),
		SellerOrderID: uuid.New(),
		Quantity:      dec(qty),
		Price:         dec(price),
		Timestamp:     time.Now(),
		Kind:          common.RegularTrade,
	}
}

func TestOpenPosition(t *testing.T) {
	l := NewLedger(nil)
	buyer, seller := uuid.New(), uuid.New()

	l.ApplyTrade(trade("GSEC10Y", "100", "98.50"), buyer, seller)

	pos, ok := l.Position(buyer, "GSEC10Y")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(dec("100")))
	assert.True(t, pos.AveragePrice.Equal(dec("98.50")))
	assert.True(t, pos.MarketValue.Equal(dec("9850")))
	assert.True(t, pos.UnrealizedPnL.IsZero())
	assert.True(t, pos.RealizedPnL.IsZero())

	short, ok := l.Position(seller, "GSEC10Y")
	require.True(t, ok)
	assert.True(t, short.Quantity.Equal(dec("-100")))
	assert.True(t, short.AveragePrice.Equal(dec("98.50")))
}

func TestIncreaseReweightsBasis(t *testing.T) {
	l := NewLedger(nil)
	buyer := uuid.New()

	l.ApplyTrade(trade("GSEC10Y", "100", "98.00"), buyer, uuid.New())
	l.ApplyTrade(trade("GSEC10Y", "100", "99.00"), buyer, uuid.New())

	pos, ok := l.Position(buyer, "GSEC10Y")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(dec("200")))
	assert.True(t, pos.AveragePrice.Equal(dec("98.5")),
		"basis %s, want 98.5", pos.AveragePrice)
}

func TestPartialCloseRealizes(t *testing.T) {
	l := NewLedger(nil)
	acct := uuid.New()

	// Long 100 @ 98, sell 40 @ 99: realize 40 x 1, basis unchanged.
	l.ApplyTrade(trade("GSEC10Y", "100", "98.00"), acct, uuid.New())
	l.ApplyTrade(trade("GSEC10Y", "40", "99.00"), uuid.New(), acct)

	pos, ok := l.Position(acct, "GSEC10Y")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(dec("60")))
	assert.True(t, pos.AveragePrice.Equal(dec("98.00")))
	assert.True(t, pos.RealizedPnL.Equal(dec("40")),
		"realized %s, want 40", pos.RealizedPnL)
}

func TestFullCloseZeroesBasis(t *testing.T) {
	l := NewLedger(nil)
	acct := uuid.New()

	l.ApplyTrade(trade("GSEC10Y", "100", "98.00"), acct, uuid.New())
	l.ApplyTrade(trade("GSEC10Y", "100", "99.50"), uuid.New(), acct)

	pos, ok := l.Position(acct, "GSEC10Y")
	require.True(t, ok)
	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, pos.AveragePrice.IsZero())
	assert.True(t, pos.RealizedPnL.Equal(dec("150")))
	assert.True(t, pos.UnrealizedPnL.IsZero())
	assert.True(t, pos.MarketValue.IsZero())
}

func TestFlipResetsBasisAtFillPrice(t *testing.T) {
	l := NewLedger(nil)
	acct := uuid.New()

	// Long 100 @ 98, sell 150 @ 99: the long closes in full
	// (realize 100 x 1) and a short 50 opens with basis 99.
	l.ApplyTrade(trade("GSEC10Y", "100", "98.00"), acct, uuid.New())
	l.ApplyTrade(trade("GSEC10Y", "150", "99.00"), uuid.New(), acct)

	pos, ok := l.Position(acct, "GSEC10Y")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(dec("-50")))
	assert.True(t, pos.AveragePrice.Equal(dec("99.00")))
	assert.True(t, pos.RealizedPnL.Equal(dec("100")),
		"realized %s, want 100", pos.RealizedPnL)
}

func TestShortCoverRealizes(t *testing.T) {
	l := NewLedger(nil)
	acct := uuid.New()

	// Short 100 @ 99, buy back 100 @ 98: profit 100.
	l.ApplyTrade(trade("TBILL91", "100", "99.00"), uuid.New(), acct)
	l.ApplyTrade(trade("TBILL91", "100", "98.00"), acct, uuid.New())

	pos, ok := l.Position(acct, "TBILL91")
	require.True(t, ok)
	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, pos.RealizedPnL.Equal(dec("100")))
}

func TestMarkPriceDrivesValuation(t *testing.T) {
	mark := dec("99.25")
	l := NewLedger(func(symbol string) (decimal.Decimal, bool) {
		return mark, true
	})
	acct := uuid.New()

	l.ApplyTrade(trade("GSEC10Y", "100", "98.00"), acct, uuid.New())

	pos, ok := l.Position(acct, "GSEC10Y")
	require.True(t, ok)
	assert.True(t, pos.MarketValue.Equal(dec("9925")))
	assert.True(t, pos.UnrealizedPnL.Equal(dec("125")),
		"unrealized %s, want 125", pos.UnrealizedPnL)
}

func TestPositionsFilterByAccount(t *testing.T) {
	l := NewLedger(nil)
	a, b := uuid.New(), uuid.New()

	l.ApplyTrade(trade("GSEC10Y", "100", "98.00"), a, b)
	l.ApplyTrade(trade("TBILL91", "50", "97.00"), a, b)

	assert.Len(t, l.Positions(nil), 4)
	assert.Len(t, l.Positions(&a), 2)

	for _, pos := range l.Positions(&a) {
		assert.Equal(t, a, pos.AccountID)
	}
}

func TestPortfolioValueAndTotalPnL(t *testing.T) {
	l := NewLedger(nil)
	acct := uuid.New()

	l.ApplyTrade(trade("GSEC10Y", "100", "98.00"), acct, uuid.New())
	l.ApplyTrade(trade("TBILL91", "50", "96.00"), acct, uuid.New())

	assert.True(t, l.PortfolioValue(acct).Equal(dec("14600")))

	unrealized, realized := l.TotalPnL(acct)
	assert.True(t, unrealized.IsZero())
	assert.True(t, realized.IsZero())
}
