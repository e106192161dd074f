package exchange

import (
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jmallek/escrowdex/pkg/core/token"
	"github.com/jmallek/escrowdex/pkg/events"
	"github.com/jmallek/escrowdex/pkg/storage"
	"github.com/jmallek/escrowdex/pkg/util"
)

// Store is the persistence surface the exchange requires. Satisfied by
// *storage.Store.
type Store interface {
	LoadBalances() (map[common.Address]map[common.Address]uint64, error)
	LoadOrders() ([]storage.OrderRecord, error)
	LastEventSeq() (uint64, error)
	NewBatch() storage.Batch
}

// Exchange is the custody ledger, order book and settlement engine in one
// state machine. It holds user balances in escrow on its own address,
// matches maker/taker orders at the maker's fixed rate and charges the
// taker a protocol fee on every fill.
//
// Internal bookkeeping is always updated before any asset-ledger call that
// could re-enter (checks, then effects, then interactions), so a reentrant
// caller observes already-consistent state and cannot double-spend. In-memory
// state is only advanced after the corresponding batch commits, so a failed
// commit leaves memory, disk and the event sequence untouched.
type Exchange struct {
	mu sync.RWMutex

	addr       common.Address // custody account on every asset ledger
	feeAccount common.Address // receives all fees
	feePercent uint64         // fixed at construction, 0..100

	registry *token.Registry
	store    Store
	log      *zap.Logger
	clock    util.Clock

	balances   map[common.Address]map[common.Address]uint64 // token -> user -> custody amount
	orders     map[uint64]*Order
	orderCount uint64 // source of order ids, never decremented
	eventSeq   uint64

	// OnEvent observes every committed envelope (wired to the WebSocket
	// hub and the in-process feed). Called outside the exchange lock.
	OnEvent func(events.Envelope)
}

// New builds an exchange and recovers balances, orders and the event
// sequence from the store, so a restarted node serves the same book.
func New(addr, feeAccount common.Address, feePercent uint64, registry *token.Registry, store Store, log *zap.Logger, clock util.Clock) (*Exchange, error) {
	if feePercent > 100 {
		return nil, fmt.Errorf("fee percent out of range: %d", feePercent)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = util.RealClock{}
	}

	balances, err := store.LoadBalances()
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}

	recs, err := store.LoadOrders()
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	orders := make(map[uint64]*Order, len(recs))
	var count uint64
	for _, rec := range recs {
		orders[rec.ID] = orderFromRecord(rec)
		if rec.ID > count {
			count = rec.ID
		}
	}

	seq, err := store.LastEventSeq()
	if err != nil {
		return nil, fmt.Errorf("load event seq: %w", err)
	}

	return &Exchange{
		addr:       addr,
		feeAccount: feeAccount,
		feePercent: feePercent,
		registry:   registry,
		store:      store,
		log:        log,
		clock:      clock,
		balances:   balances,
		orders:     orders,
		orderCount: count,
		eventSeq:   seq,
	}, nil
}

func (x *Exchange) Address() common.Address    { return x.addr }
func (x *Exchange) FeeAccount() common.Address { return x.feeAccount }
func (x *Exchange) FeePercent() uint64         { return x.feePercent }

// Deposit pulls amount of tok from user's wallet into escrow and credits
// the user's custody balance. The caller must have approved the exchange on
// the asset ledger beforehand; any refusal by the ledger (unknown asset,
// missing allowance, insufficient wallet balance) is reported as
// ErrTransferRejected with nothing mutated. Returns the resulting custody
// balance.
func (x *Exchange) Deposit(user, tok common.Address, amount uint64) (uint64, error) {
	t, err := x.registry.Get(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferRejected, err)
	}

	// Interaction first: custody is credited only for value actually
	// received.
	if err := t.TransferFrom(x.addr, user, x.addr, amount); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferRejected, err)
	}

	x.mu.Lock()
	balance := x.balances[tok][user] + amount
	env := x.nextEnvelopeLocked(events.NameDeposit, events.Deposit{
		Token:   tok,
		User:    user,
		Amount:  amount,
		Balance: balance,
	})
	err = x.commitBalance(env, tok, user, balance)
	if err == nil {
		x.setBalanceLocked(tok, user, balance)
		x.eventSeq = env.Seq
	}
	x.mu.Unlock()
	if err != nil {
		// Persistence failed; return the pulled funds so the operation
		// has no effect.
		if rerr := t.Transfer(x.addr, user, amount); rerr != nil {
			x.log.Error("deposit_refund_failed",
				zap.String("user", user.Hex()),
				zap.Error(rerr))
		}
		return 0, err
	}

	x.log.Info("deposit",
		zap.String("token", tok.Hex()),
		zap.String("user", user.Hex()),
		zap.Uint64("amount", amount),
		zap.Uint64("balance", balance))
	x.publish(env)
	return balance, nil
}

// Withdraw debits the user's custody balance and pushes amount of tok back
// to the user's wallet. Fails with ErrInsufficientBalance before any
// mutation if custody does not cover amount.
func (x *Exchange) Withdraw(user, tok common.Address, amount uint64) (uint64, error) {
	t, err := x.registry.Get(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferRejected, err)
	}

	// Checks and effects under the lock, before the external push: a
	// reentrant call during the transfer sees the debit already applied.
	x.mu.Lock()
	held := x.balances[tok][user]
	if held < amount {
		x.mu.Unlock()
		return 0, ErrInsufficientBalance
	}
	x.setBalanceLocked(tok, user, held-amount)
	x.mu.Unlock()

	if err := t.Transfer(x.addr, user, amount); err != nil {
		// Compensate the debit; the operation has no effect.
		x.mu.Lock()
		x.setBalanceLocked(tok, user, x.balances[tok][user]+amount)
		x.mu.Unlock()
		return 0, fmt.Errorf("%w: %w", ErrTransferRejected, err)
	}

	x.mu.Lock()
	balance := x.balances[tok][user]
	env := x.nextEnvelopeLocked(events.NameWithdraw, events.Withdraw{
		Token:   tok,
		User:    user,
		Amount:  amount,
		Balance: balance,
	})
	err = x.commitBalance(env, tok, user, balance)
	if err == nil {
		x.eventSeq = env.Seq
	}
	x.mu.Unlock()
	if err != nil {
		// Persistence failed; claw the pushed funds back and restore the
		// debit so memory, disk and wallets agree again.
		if cerr := t.Transfer(user, x.addr, amount); cerr != nil {
			x.log.Error("withdraw_clawback_failed",
				zap.String("user", user.Hex()),
				zap.Error(cerr))
			return 0, err
		}
		x.mu.Lock()
		x.setBalanceLocked(tok, user, x.balances[tok][user]+amount)
		x.mu.Unlock()
		return 0, err
	}

	x.log.Info("withdraw",
		zap.String("token", tok.Hex()),
		zap.String("user", user.Hex()),
		zap.Uint64("amount", amount),
		zap.Uint64("balance", balance))
	x.publish(env)
	return balance, nil
}

// BalanceOf returns the custody balance of account for tok.
func (x *Exchange) BalanceOf(tok, account common.Address) uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.balances[tok][account]
}

// MakeOrder appends an open order offering amountGive of tokenGive for
// amountGet of tokenGet and returns its id. The maker's custody balance
// must cover the offered amount at creation time; the funds are not locked,
// so the order can still fail at settlement if the maker spends them first.
func (x *Exchange) MakeOrder(user, tokenGet common.Address, amountGet uint64, tokenGive common.Address, amountGive uint64) (uint64, error) {
	x.mu.Lock()
	if x.balances[tokenGive][user] < amountGive {
		x.mu.Unlock()
		return 0, ErrInsufficientBalance
	}

	o := &Order{
		ID:         x.orderCount + 1,
		User:       user,
		TokenGet:   tokenGet,
		AmountGet:  amountGet,
		TokenGive:  tokenGive,
		AmountGive: amountGive,
		Timestamp:  x.clock.Now().Unix(),
		Status:     OrderOpen,
	}
	env := x.nextEnvelopeLocked(events.NameOrder, events.Order{
		ID:         o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		Timestamp:  o.Timestamp,
	})
	err := x.commitOrder(env, o.record())
	if err == nil {
		x.orderCount = o.ID
		x.orders[o.ID] = o
		x.eventSeq = env.Seq
	}
	x.mu.Unlock()
	if err != nil {
		return 0, err
	}

	x.log.Info("order_created",
		zap.Uint64("id", o.ID),
		zap.String("maker", user.Hex()))
	x.publish(env)
	return o.ID, nil
}

// CancelOrder marks an open order cancelled. Only the maker may cancel, and
// only while the order is open; cancellation is immediate and terminal.
func (x *Exchange) CancelOrder(user common.Address, id uint64) error {
	x.mu.Lock()
	o, ok := x.orders[id]
	if !ok {
		x.mu.Unlock()
		return ErrUnknownOrder
	}
	if o.User != user {
		x.mu.Unlock()
		return ErrUnauthorized
	}
	if o.Status != OrderOpen {
		x.mu.Unlock()
		return ErrOrderNotOpen
	}

	env := x.nextEnvelopeLocked(events.NameCancel, events.Cancel{
		ID:         o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		Timestamp:  x.clock.Now().Unix(),
	})
	rec := o.record()
	rec.Status = int8(OrderCancelled)
	err := x.commitOrder(env, rec)
	if err == nil {
		o.Status = OrderCancelled
		x.eventSeq = env.Seq
	}
	x.mu.Unlock()
	if err != nil {
		return err
	}

	x.log.Info("order_cancelled", zap.Uint64("id", id))
	x.publish(env)
	return nil
}

// FillOrder settles an open order against the caller (the taker) at the
// maker's rate, charging the taker a fee of amountGet*feePercent/100
// (rounded down) in tokenGet. The whole trade is one atomic unit: every
// check runs before any balance moves, and the balance moves, the status
// flip and the Trade event land in a single store commit.
//
// The taker may be the maker; self-fills settle like any other.
func (x *Exchange) FillOrder(taker common.Address, id uint64) error {
	x.mu.Lock()
	o, ok := x.orders[id]
	if !ok {
		x.mu.Unlock()
		return ErrUnknownOrder
	}
	if o.Status != OrderOpen {
		x.mu.Unlock()
		return ErrOrderNotOpen
	}

	fee := feeFor(o.AmountGet, x.feePercent)
	total, carry := bits.Add64(o.AmountGet, fee, 0)
	if carry != 0 {
		// A charge that overflows uint64 can never be covered.
		x.mu.Unlock()
		return ErrInsufficientBalance
	}
	if x.balances[o.TokenGet][taker] < total {
		x.mu.Unlock()
		return ErrInsufficientBalance
	}
	if x.balances[o.TokenGive][o.User] < o.AmountGive {
		x.mu.Unlock()
		return ErrInsufficientBalance
	}

	// All checks passed; apply the five balance moves.
	x.setBalanceLocked(o.TokenGet, taker, x.balances[o.TokenGet][taker]-total)
	x.setBalanceLocked(o.TokenGet, o.User, x.balances[o.TokenGet][o.User]+o.AmountGet)
	x.setBalanceLocked(o.TokenGet, x.feeAccount, x.balances[o.TokenGet][x.feeAccount]+fee)
	x.setBalanceLocked(o.TokenGive, o.User, x.balances[o.TokenGive][o.User]-o.AmountGive)
	x.setBalanceLocked(o.TokenGive, taker, x.balances[o.TokenGive][taker]+o.AmountGive)

	env := x.nextEnvelopeLocked(events.NameTrade, events.Trade{
		ID:         o.ID,
		User:       taker,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		Creator:    o.User,
		FeeAmount:  fee,
		Timestamp:  x.clock.Now().Unix(),
	})
	rec := o.record()
	rec.Status = int8(OrderFilled)
	err := x.commitTrade(env, rec, taker)
	if err == nil {
		o.Status = OrderFilled
		x.eventSeq = env.Seq
	} else {
		// Undo the five moves in reverse so a failed commit leaves no
		// trace; reverse order keeps self-fills exact.
		x.setBalanceLocked(o.TokenGive, taker, x.balances[o.TokenGive][taker]-o.AmountGive)
		x.setBalanceLocked(o.TokenGive, o.User, x.balances[o.TokenGive][o.User]+o.AmountGive)
		x.setBalanceLocked(o.TokenGet, x.feeAccount, x.balances[o.TokenGet][x.feeAccount]-fee)
		x.setBalanceLocked(o.TokenGet, o.User, x.balances[o.TokenGet][o.User]-o.AmountGet)
		x.setBalanceLocked(o.TokenGet, taker, x.balances[o.TokenGet][taker]+total)
	}
	x.mu.Unlock()
	if err != nil {
		return err
	}

	x.log.Info("trade",
		zap.Uint64("id", o.ID),
		zap.String("maker", o.User.Hex()),
		zap.String("taker", taker.Hex()),
		zap.Uint64("feeAmount", fee))
	x.publish(env)
	return nil
}

// OrderCount returns the number of orders ever created.
func (x *Exchange) OrderCount() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.orderCount
}

// OrderCancelled reports whether id exists and is cancelled.
func (x *Exchange) OrderCancelled(id uint64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	o, ok := x.orders[id]
	return ok && o.Status == OrderCancelled
}

// OrderFilled reports whether id exists and is filled.
func (x *Exchange) OrderFilled(id uint64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	o, ok := x.orders[id]
	return ok && o.Status == OrderFilled
}

// GetOrder returns a copy of the order with the given id.
func (x *Exchange) GetOrder(id uint64) (Order, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	o, ok := x.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Orders returns copies of all orders, oldest first.
func (x *Exchange) Orders() []Order {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]Order, 0, len(x.orders))
	for _, o := range x.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// setBalanceLocked writes a custody balance in memory. Assumes x.mu held.
func (x *Exchange) setBalanceLocked(tok, user common.Address, amount uint64) {
	m, ok := x.balances[tok]
	if !ok {
		m = make(map[common.Address]uint64)
		x.balances[tok] = m
	}
	m[user] = amount
}

// nextEnvelopeLocked builds the envelope for the next sequence number
// without consuming it; callers advance eventSeq only after a successful
// commit, so failed operations leave no gap in the log. Assumes x.mu held.
func (x *Exchange) nextEnvelopeLocked(name string, payload any) events.Envelope {
	return events.Envelope{
		Seq:     x.eventSeq + 1,
		Name:    name,
		Time:    x.clock.Now().Unix(),
		Payload: payload,
	}
}

// commitBalance persists one balance write plus its envelope. Assumes x.mu held.
func (x *Exchange) commitBalance(env events.Envelope, tok, user common.Address, balance uint64) error {
	b := x.store.NewBatch()
	defer b.Close()
	if err := b.SetBalance(tok, user, balance); err != nil {
		return fmt.Errorf("persist balance: %w", err)
	}
	if err := b.AppendEvent(env); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("persist balance: %w", err)
	}
	return nil
}

// commitOrder persists one order record plus its envelope. Assumes x.mu held.
func (x *Exchange) commitOrder(env events.Envelope, rec storage.OrderRecord) error {
	b := x.store.NewBatch()
	defer b.Close()
	if err := b.PutOrder(rec); err != nil {
		return fmt.Errorf("persist order: %w", err)
	}
	if err := b.AppendEvent(env); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("persist order: %w", err)
	}
	return nil
}

// commitTrade persists the five post-trade balances, the filled order record
// and the Trade envelope in one atomic batch. Assumes x.mu held and the
// in-memory moves already applied.
func (x *Exchange) commitTrade(env events.Envelope, rec storage.OrderRecord, taker common.Address) error {
	b := x.store.NewBatch()
	defer b.Close()

	writes := []struct {
		tok  common.Address
		user common.Address
	}{
		{rec.TokenGet, taker},
		{rec.TokenGet, rec.User},
		{rec.TokenGet, x.feeAccount},
		{rec.TokenGive, rec.User},
		{rec.TokenGive, taker},
	}
	for _, w := range writes {
		if err := b.SetBalance(w.tok, w.user, x.balances[w.tok][w.user]); err != nil {
			return fmt.Errorf("persist trade: %w", err)
		}
	}
	if err := b.PutOrder(rec); err != nil {
		return fmt.Errorf("persist trade: %w", err)
	}
	if err := b.AppendEvent(env); err != nil {
		return fmt.Errorf("persist trade: %w", err)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("persist trade: %w", err)
	}
	return nil
}

// publish hands a committed envelope to the observer, if any.
func (x *Exchange) publish(env events.Envelope) {
	if x.OnEvent != nil {
		x.OnEvent(env)
	}
}

// feeFor computes amountGet*feePercent/100 without intermediate overflow,
// rounding toward zero. feePercent <= 100 keeps the 128-bit quotient within
// uint64.
func feeFor(amountGet, feePercent uint64) uint64 {
	hi, lo := bits.Mul64(amountGet, feePercent)
	if hi == 0 {
		return lo / 100
	}
	q, _ := bits.Div64(hi, lo, 100)
	return q
}
