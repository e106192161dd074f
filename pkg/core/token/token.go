package token

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Base-unit scale. Amounts are unsigned base units; a token with Decimals=6
// represents 1.0 as 1_000_000 units (uint64 leaves ample headroom for any
// realistic supply).
const Decimals = 6

const unitScale = 1_000_000

var (
	ErrInvalidAddress        = errors.New("invalid address")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSupplyOverflow        = errors.New("total supply overflows uint64")
)

// Event names and payloads for the token's own feed, mirroring the standard
// fungible-token events.
const (
	NameTransfer = "Transfer"
	NameApproval = "Approval"
)

type TransferEvent struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value uint64         `json:"value"`
}

type ApprovalEvent struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   uint64         `json:"value"`
}

// Token is an in-process fungible-token ledger with standard
// transfer/approve/allowance semantics. It is the exchange's external
// collaborator: the exchange only ever calls Transfer, TransferFrom and
// BalanceOf and treats any refusal as opaque.
type Token struct {
	mu sync.RWMutex

	addr        common.Address
	name        string
	symbol      string
	totalSupply uint64

	balances   map[common.Address]uint64
	allowances map[common.Address]map[common.Address]uint64

	// OnEvent, when set, observes every Transfer/Approval. Must not call
	// back into the token.
	OnEvent func(name string, payload any)
}

// New creates a token ledger and assigns the entire supply (given in whole
// tokens) to the deployer.
func New(addr common.Address, name, symbol string, supply uint64, deployer common.Address) (*Token, error) {
	if supply > ^uint64(0)/unitScale {
		return nil, ErrSupplyOverflow
	}
	total := supply * unitScale

	t := &Token{
		addr:        addr,
		name:        name,
		symbol:      symbol,
		totalSupply: total,
		balances:    map[common.Address]uint64{deployer: total},
		allowances:  make(map[common.Address]map[common.Address]uint64),
	}
	return t, nil
}

func (t *Token) Address() common.Address { return t.addr }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) TotalSupply() uint64     { return t.totalSupply }

func (t *Token) BalanceOf(acct common.Address) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[acct]
}

func (t *Token) Allowance(owner, spender common.Address) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowances[owner][spender]
}

// Transfer moves amount from the caller's balance to to.
func (t *Token) Transfer(from, to common.Address, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferLocked(from, to, amount)
}

func (t *Token) transferLocked(from, to common.Address, amount uint64) error {
	if to == (common.Address{}) {
		return ErrInvalidAddress
	}
	if t.balances[from] < amount {
		return ErrInsufficientBalance
	}

	t.balances[from] -= amount
	t.balances[to] += amount

	t.emit(NameTransfer, TransferEvent{From: from, To: to, Value: amount})
	return nil
}

// Approve authorizes spender to move up to amount of the owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount uint64) error {
	if spender == (common.Address{}) {
		return ErrInvalidAddress
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]uint64)
	}
	t.allowances[owner][spender] = amount

	t.emit(NameApproval, ApprovalEvent{Owner: owner, Spender: spender, Value: amount})
	return nil
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// the spender's allowance.
func (t *Token) TransferFrom(spender, from, to common.Address, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allowances[from][spender] < amount {
		return ErrInsufficientAllowance
	}
	if err := t.transferLocked(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] -= amount
	return nil
}

// emit assumes t.mu is held; the hook runs inline so observers see events in
// ledger order.
func (t *Token) emit(name string, payload any) {
	if t.OnEvent != nil {
		t.OnEvent(name, payload)
	}
}
