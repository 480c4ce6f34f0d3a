package common

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Wire-visible error taxonomy. Category errors are sentinels; errors
// carrying detail are typed and unwrap to nothing. Each maps to a
// distinct client-visible code at the gateway.
var (
	ErrOrderNotFound = errors.New("order not found")
	ErrMarketClosed  = errors.New("market closed")
)

// InvalidOrderError rejects a malformed order before it touches any
// engine state.
type InvalidOrderError struct {
	Detail string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: %s", e.Detail)
}

// RiskLimitError rejects an order that failed a pre-trade risk check.
type RiskLimitError struct {
	Detail string
}

func (e *RiskLimitError) Error() string {
	return fmt.Sprintf("risk limit exceeded: %s", e.Detail)
}

// InsufficientBalanceError rejects an order the account cannot fund.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s",
		e.Required, e.Available)
}

// InternalError wraps an engine inconsistency. One raised during
// matching aborts the submission without partial trade emission; one
// raised while settling trades into the ledger is returned after the
// trades have executed, which are not rolled back.
type InternalError struct {
	Detail string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Detail)
}

// ErrorCode returns the stable wire code for err, or "internal" for
// anything outside the taxonomy.
func ErrorCode(err error) string {
	var (
		invalid      *InvalidOrderError
		risk         *RiskLimitError
		insufficient *InsufficientBalanceError
	)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrMarketClosed):
		return "market_closed"
	case errors.As(err, &invalid):
		return "invalid_order"
	case errors.As(err, &risk):
		return "risk_limit_exceeded"
	case errors.As(err, &insufficient):
		return "insufficient_balance"
	}
	return "internal"
}
