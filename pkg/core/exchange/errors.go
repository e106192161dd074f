package exchange

import "errors"

// Failure taxonomy. Every error is detected before any state mutation for
// the call, so a failed operation leaves balances, orders and the event log
// untouched.
var (
	// ErrInsufficientBalance: a debit would exceed the available custody
	// balance (withdraw, order creation, or either leg of a fill).
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransferRejected: the underlying asset ledger declined the
	// transfer (unknown asset, missing allowance, zero-address recipient).
	ErrTransferRejected = errors.New("transfer rejected")

	// ErrUnknownOrder: the order id was never issued.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrOrderNotOpen: the order is already filled or cancelled.
	ErrOrderNotOpen = errors.New("order not open")

	// ErrUnauthorized: caller is not the order's maker.
	ErrUnauthorized = errors.New("unauthorized")
)
