package api

// API request/response types for REST endpoints and WebSocket messages.
// Raw amounts are unsigned base units; the *Decimal fields carry the same
// value scaled by the token's decimals for display.

// ==============================
// REST Response Types
// ==============================

// TokenInfo describes a deployed asset ledger.
type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply uint64 `json:"totalSupply"`
}

// BalanceInfo is a custody balance for one (token, account) pair.
type BalanceInfo struct {
	Token         string `json:"token"`
	Account       string `json:"account"`
	Amount        uint64 `json:"amount"`
	AmountDecimal string `json:"amountDecimal"`
}

// OrderInfo is an order book entry. Price is amountGet/amountGive, the rate
// fixed by the maker.
type OrderInfo struct {
	ID         uint64 `json:"id"`
	User       string `json:"user"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  uint64 `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive uint64 `json:"amountGive"`
	Timestamp  int64  `json:"timestamp"`
	Status     string `json:"status"`
	Price      string `json:"price"`
}

// ==============================
// REST Request Types
// ==============================

// DepositRequest is the payload for POST /api/v1/deposit (and withdraw).
type DepositRequest struct {
	From   string `json:"from"`
	Token  string `json:"token"`
	Amount uint64 `json:"amount"`
}

// MakeOrderRequest is the payload for POST /api/v1/orders.
type MakeOrderRequest struct {
	From       string `json:"from"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  uint64 `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive uint64 `json:"amountGive"`
}

// OrderActionRequest is the payload for cancel and fill.
type OrderActionRequest struct {
	From string `json:"from"`
}

// TransferRequest is the payload for POST /api/v1/tokens/{address}/transfer.
type TransferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ApproveRequest is the payload for POST /api/v1/tokens/{address}/approve.
// Spender defaults to the exchange's custody address.
type ApproveRequest struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender,omitempty"`
	Amount  uint64 `json:"amount"`
}

// MakeOrderResponse carries the assigned order id.
type MakeOrderResponse struct {
	ID uint64 `json:"id"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage channel subscriptions.
// Channels: "events" (everything), "trades", "orders", "balances".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
