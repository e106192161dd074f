package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmallek/escrowdex/pkg/core/exchange"
	"github.com/jmallek/escrowdex/pkg/core/token"
	"github.com/jmallek/escrowdex/pkg/events"
	"github.com/jmallek/escrowdex/pkg/storage"
)

// Server exposes the exchange over REST and pushes the event stream over
// WebSocket. All amounts cross the wire in base units.
type Server struct {
	exchange *exchange.Exchange
	registry *token.Registry
	store    *storage.Store
	feed     *events.Feed
	router   *mux.Router
	hub      *Hub
	log      *zap.Logger
}

func NewServer(x *exchange.Exchange, registry *token.Registry, store *storage.Store, feed *events.Feed, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		exchange: x,
		registry: registry,
		store:    store,
		feed:     feed,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Token (asset ledger) endpoints
	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")
	api.HandleFunc("/tokens/{address}/transfer", s.handleTransfer).Methods("POST")
	api.HandleFunc("/tokens/{address}/approve", s.handleApprove).Methods("POST")

	// Custody ledger
	api.HandleFunc("/balances/{token}/{account}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")

	// Order book
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders", s.handleMakeOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/fill", s.handleFillOrder).Methods("POST")

	// Event log
	api.HandleFunc("/trades", s.handleListTrades).Methods("GET")
	api.HandleFunc("/events", s.handleListEvents).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler exposes the router for tests and for embedding into another mux.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the hub, bridges the event feed onto it and serves HTTP.
// Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	go s.pumpEvents()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Info("api_server_starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// pumpEvents forwards committed envelopes from the feed to WebSocket
// channels: everything lands on "events", trades also on "trades", order
// lifecycle on "orders", custody moves on "balances".
func (s *Server) pumpEvents() {
	ch, cancel := s.feed.Subscribe(256)
	defer cancel()

	for env := range ch {
		s.hub.BroadcastToChannel("events", env)
		switch env.Name {
		case events.NameTrade:
			s.hub.BroadcastToChannel("trades", env)
		case events.NameOrder, events.NameCancel:
			s.hub.BroadcastToChannel("orders", env)
		case events.NameDeposit, events.NameWithdraw:
			s.hub.BroadcastToChannel("balances", env)
		}
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.registry.List()
	response := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		response[i] = TokenInfo{
			Address:     t.Address().Hex(),
			Name:        t.Name(),
			Symbol:      t.Symbol(),
			Decimals:    token.Decimals,
			TotalSupply: t.TotalSupply(),
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tokenFromPath(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	from, ok := parseAddress(w, req.From, "from")
	if !ok {
		return
	}
	to, ok := parseAddress(w, req.To, "to")
	if !ok {
		return
	}

	if err := t.Transfer(from, to, req.Amount); err != nil {
		respondError(w, http.StatusBadRequest, "transfer failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tokenFromPath(w, r)
	if !ok {
		return
	}

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(w, req.Owner, "owner")
	if !ok {
		return
	}
	spender := s.exchange.Address()
	if req.Spender != "" {
		if spender, ok = parseAddress(w, req.Spender, "spender"); !ok {
			return
		}
	}

	if err := t.Approve(owner, spender, req.Amount); err != nil {
		respondError(w, http.StatusBadRequest, "approve failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tok, ok := parseAddress(w, vars["token"], "token")
	if !ok {
		return
	}
	account, ok := parseAddress(w, vars["account"], "account")
	if !ok {
		return
	}

	amount := s.exchange.BalanceOf(tok, account)
	respondJSON(w, BalanceInfo{
		Token:         tok.Hex(),
		Account:       account.Hex(),
		Amount:        amount,
		AmountDecimal: amountDecimal(amount),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleCustodyMove(w, r, s.exchange.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleCustodyMove(w, r, s.exchange.Withdraw)
}

func (s *Server) handleCustodyMove(w http.ResponseWriter, r *http.Request, op func(user, tok common.Address, amount uint64) (uint64, error)) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	from, ok := parseAddress(w, req.From, "from")
	if !ok {
		return
	}
	tok, ok := parseAddress(w, req.Token, "token")
	if !ok {
		return
	}

	balance, err := op(from, tok, req.Amount)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{
		Token:         tok.Hex(),
		Account:       from.Hex(),
		Amount:        balance,
		AmountDecimal: amountDecimal(balance),
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")

	orders := s.exchange.Orders()
	response := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		if statusFilter != "" && o.Status.String() != statusFilter {
			continue
		}
		response = append(response, orderInfo(o))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	o, found := s.exchange.GetOrder(id)
	if !found {
		respondError(w, http.StatusNotFound, "unknown order", "")
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req MakeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	from, ok := parseAddress(w, req.From, "from")
	if !ok {
		return
	}
	tokenGet, ok := parseAddress(w, req.TokenGet, "tokenGet")
	if !ok {
		return
	}
	tokenGive, ok := parseAddress(w, req.TokenGive, "tokenGive")
	if !ok {
		return
	}

	id, err := s.exchange.MakeOrder(from, tokenGet, req.AmountGet, tokenGive, req.AmountGive)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, MakeOrderResponse{ID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, s.exchange.CancelOrder)
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, s.exchange.FillOrder)
}

func (s *Server) handleOrderAction(w http.ResponseWriter, r *http.Request, op func(user common.Address, id uint64) error) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	from, ok := parseAddress(w, req.From, "from")
	if !ok {
		return
	}

	if err := op(from, id); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	trades, err := s.store.RecentEvents(events.NameTrade, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "event log read failed", err.Error())
		return
	}
	if trades == nil {
		trades = []events.Envelope{}
	}
	respondJSON(w, trades)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	from := uint64(queryInt(r, "from", 1))
	limit := queryInt(r, "limit", 500)

	envs, err := s.store.Events(from, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "event log read failed", err.Error())
		return
	}
	if envs == nil {
		envs = []events.Envelope{}
	}
	respondJSON(w, envs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) tokenFromPath(w http.ResponseWriter, r *http.Request) (*token.Token, bool) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"], "address")
	if !ok {
		return nil, false
	}
	t, err := s.registry.Get(addr)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown token", addr.Hex())
		return nil, false
	}
	return t, true
}

func parseAddress(w http.ResponseWriter, s, field string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", field)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func orderInfo(o exchange.Order) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		User:       o.User.Hex(),
		TokenGet:   o.TokenGet.Hex(),
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive.Hex(),
		AmountGive: o.AmountGive,
		Timestamp:  o.Timestamp,
		Status:     o.Status.String(),
		Price:      orderPrice(o.AmountGet, o.AmountGive),
	}
}

// orderPrice renders the maker's rate amountGet/amountGive.
func orderPrice(amountGet, amountGive uint64) string {
	if amountGive == 0 {
		return "0"
	}
	get := decimal.NewFromUint64(amountGet)
	give := decimal.NewFromUint64(amountGive)
	return get.Div(give).String()
}

// amountDecimal renders a base-unit amount scaled by the token decimals.
func amountDecimal(amount uint64) string {
	return decimal.NewFromUint64(amount).Shift(-token.Decimals).String()
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}

// respondLedgerError maps the exchange failure taxonomy onto HTTP statuses.
func respondLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, exchange.ErrUnknownOrder):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, exchange.ErrOrderNotOpen):
		status = http.StatusConflict
	case errors.Is(err, exchange.ErrInsufficientBalance),
		errors.Is(err, exchange.ErrTransferRejected):
		status = http.StatusUnprocessableEntity
	}
	respondError(w, status, "operation rejected", err.Error())
}
