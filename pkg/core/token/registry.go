package token

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jmallek/escrowdex/pkg/crypto"
)

var ErrUnknownToken = errors.New("unknown token")

// Registry maps asset addresses to token ledgers. Any address may be asked
// for: assets are accepted dynamically, and validity is decided by whether
// the lookup and the subsequent transfer succeed, not by an allow-list.
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]*Token
	nonce  uint64
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[common.Address]*Token)}
}

// Deploy creates a token at a deterministic address derived from the
// deployer, symbol and a per-registry nonce, and assigns the full supply to
// the deployer.
func (r *Registry) Deploy(deployer common.Address, name, symbol string, supply uint64) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := crypto.ContractAddress(deployer, symbol, r.nonce)
	if _, exists := r.tokens[addr]; exists {
		return nil, errors.New("token address collision")
	}

	t, err := New(addr, name, symbol, supply, deployer)
	if err != nil {
		return nil, err
	}

	r.tokens[addr] = t
	r.nonce++
	return t, nil
}

// Get resolves an asset address to its ledger.
func (r *Registry) Get(addr common.Address) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[addr]
	if !ok {
		return nil, ErrUnknownToken
	}
	return t, nil
}

// List returns all deployed tokens.
func (r *Registry) List() []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	return out
}
