package token_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jmallek/escrowdex/pkg/core/token"
)

var (
	tokenAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	deployer  = common.HexToAddress("0xDE00000000000000000000000000000000000001")
	receiver  = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	spender   = common.HexToAddress("0xEC00000000000000000000000000000000000000")
)

func newToken(t *testing.T) *token.Token {
	t.Helper()
	tok, err := token.New(tokenAddr, "Dapp University", "DAPP", 1_000_000, deployer)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	return tok
}

func TestTokenMetadata(t *testing.T) {
	tok := newToken(t)

	if got := tok.Name(); got != "Dapp University" {
		t.Errorf("name: got %q", got)
	}
	if got := tok.Symbol(); got != "DAPP" {
		t.Errorf("symbol: got %q", got)
	}
	// 1,000,000 whole tokens at 6 decimals.
	want := uint64(1_000_000) * 1_000_000
	if got := tok.TotalSupply(); got != want {
		t.Errorf("total supply: got %d, want %d", got, want)
	}
	if got := tok.BalanceOf(deployer); got != want {
		t.Errorf("deployer balance: got %d, want %d", got, want)
	}
}

func TestSupplyOverflow(t *testing.T) {
	_, err := token.New(tokenAddr, "Huge", "HUGE", ^uint64(0), deployer)
	if !errors.Is(err, token.ErrSupplyOverflow) {
		t.Fatalf("expected ErrSupplyOverflow, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	tok := newToken(t)

	var gotName string
	var gotPayload any
	tok.OnEvent = func(name string, payload any) {
		gotName, gotPayload = name, payload
	}

	if err := tok.Transfer(deployer, receiver, 100); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := tok.BalanceOf(receiver); got != 100 {
		t.Errorf("receiver balance: got %d, want 100", got)
	}
	if got := tok.BalanceOf(deployer); got != tok.TotalSupply()-100 {
		t.Errorf("sender balance: got %d", got)
	}

	if gotName != token.NameTransfer {
		t.Fatalf("event name: got %q, want Transfer", gotName)
	}
	ev := gotPayload.(token.TransferEvent)
	if ev.From != deployer || ev.To != receiver || ev.Value != 100 {
		t.Errorf("unexpected Transfer event: %+v", ev)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	tok := newToken(t)

	err := tok.Transfer(receiver, deployer, 1) // receiver holds nothing
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := tok.BalanceOf(deployer); got != tok.TotalSupply() {
		t.Errorf("balances mutated on failed transfer: %d", got)
	}
}

func TestTransferToZeroAddress(t *testing.T) {
	tok := newToken(t)

	err := tok.Transfer(deployer, common.Address{}, 100)
	if !errors.Is(err, token.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestApprove(t *testing.T) {
	tok := newToken(t)

	var gotName string
	var gotPayload any
	tok.OnEvent = func(name string, payload any) {
		gotName, gotPayload = name, payload
	}

	if err := tok.Approve(deployer, spender, 100); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := tok.Allowance(deployer, spender); got != 100 {
		t.Errorf("allowance: got %d, want 100", got)
	}

	if gotName != token.NameApproval {
		t.Fatalf("event name: got %q, want Approval", gotName)
	}
	ev := gotPayload.(token.ApprovalEvent)
	if ev.Owner != deployer || ev.Spender != spender || ev.Value != 100 {
		t.Errorf("unexpected Approval event: %+v", ev)
	}

	// Re-approving replaces rather than accumulates.
	if err := tok.Approve(deployer, spender, 40); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if got := tok.Allowance(deployer, spender); got != 40 {
		t.Errorf("allowance after re-approve: got %d, want 40", got)
	}
}

func TestApproveZeroAddressSpender(t *testing.T) {
	tok := newToken(t)

	err := tok.Approve(deployer, common.Address{}, 100)
	if !errors.Is(err, token.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestTransferFrom(t *testing.T) {
	tok := newToken(t)

	if err := tok.Approve(deployer, spender, 100); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := tok.TransferFrom(spender, deployer, receiver, 60); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := tok.BalanceOf(receiver); got != 60 {
		t.Errorf("receiver balance: got %d, want 60", got)
	}
	if got := tok.Allowance(deployer, spender); got != 40 {
		t.Errorf("remaining allowance: got %d, want 40", got)
	}
}

func TestTransferFromExceedsAllowance(t *testing.T) {
	tok := newToken(t)

	if err := tok.Approve(deployer, spender, 50); err != nil {
		t.Fatalf("approve: %v", err)
	}
	err := tok.TransferFrom(spender, deployer, receiver, 51)
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if got := tok.Allowance(deployer, spender); got != 50 {
		t.Errorf("allowance mutated on failed transferFrom: %d", got)
	}
}

func TestTransferFromWithoutApproval(t *testing.T) {
	tok := newToken(t)

	err := tok.TransferFrom(spender, deployer, receiver, 1)
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := token.NewRegistry()

	a, err := r.Deploy(deployer, "Token A", "TOKA", 1000)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	b, err := r.Deploy(deployer, "Token B", "TOKB", 1000)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if a.Address() == b.Address() {
		t.Error("distinct tokens share an address")
	}

	got, err := r.Get(a.Address())
	if err != nil || got != a {
		t.Errorf("lookup: got %v, %v", got, err)
	}
	if _, err := r.Get(common.HexToAddress("0x9999000000000000000000000000000000000000")); !errors.Is(err, token.ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
	if got := len(r.List()); got != 2 {
		t.Errorf("list length: got %d, want 2", got)
	}
}

// Deterministic addressing: deploying the same symbols in the same order in a
// fresh registry lands on the same addresses, which is what lets a restarted
// node find its ledger again.
func TestRegistryDeterministicAddresses(t *testing.T) {
	r1 := token.NewRegistry()
	r2 := token.NewRegistry()

	a1, _ := r1.Deploy(deployer, "Token A", "TOKA", 1000)
	a2, _ := r2.Deploy(deployer, "Token A", "TOKA", 1000)
	if a1.Address() != a2.Address() {
		t.Errorf("addresses differ: %s vs %s", a1.Address().Hex(), a2.Address().Hex())
	}
}
