package events

import "github.com/ethereum/go-ethereum/common"

// Event names as they appear on the wire. Downstream indexers key on these,
// so they follow the original contract event names exactly.
const (
	NameDeposit  = "Deposit"
	NameWithdraw = "Withdraw"
	NameOrder    = "Order"
	NameCancel   = "Cancel"
	NameTrade    = "Trade"
)

// Deposit is emitted after custody is credited. Balance is the resulting
// custody balance of user for token.
type Deposit struct {
	Token   common.Address `json:"token"`
	User    common.Address `json:"user"`
	Amount  uint64         `json:"amount"`
	Balance uint64         `json:"balance"`
}

// Withdraw mirrors Deposit for the debit direction.
type Withdraw struct {
	Token   common.Address `json:"token"`
	User    common.Address `json:"user"`
	Amount  uint64         `json:"amount"`
	Balance uint64         `json:"balance"`
}

// Order is emitted once per created order, carrying every immutable field.
type Order struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  uint64         `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive uint64         `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

// Cancel repeats the order fields; Timestamp is the cancellation time.
type Cancel struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  uint64         `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive uint64         `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

// Trade is emitted once per settled fill. User is the taker, Creator the
// maker, matching the original wire format; FeeAmount is the fee charged to
// the taker in TokenGet units.
type Trade struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  uint64         `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive uint64         `json:"amountGive"`
	Creator    common.Address `json:"creator"`
	FeeAmount  uint64         `json:"feeAmount"`
	Timestamp  int64          `json:"timestamp"`
}

// Envelope wraps a payload for the durable log. Seq is assigned by the
// exchange, starts at 1 and never repeats; failed operations are never
// enveloped.
type Envelope struct {
	Seq     uint64 `json:"seq"`
	Name    string `json:"name"`
	Time    int64  `json:"time"`
	Payload any    `json:"payload"`
}
