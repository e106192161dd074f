package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Prefix-based so each table supports cheap range scans,
// zero-padded numeric components so lexicographic order matches numeric
// order.
const (
	prefixBalance = "bal:" // custody balance per (token, user)
	prefixOrder   = "ord:" // order records by id
	prefixEvent   = "evt:" // append-only event log by sequence
)

// balanceKey returns the key for a custody balance.
// Format: "bal:{token}:{user}"
func balanceKey(token, user common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, token.Hex(), user.Hex()))
}

// balanceKeyAddrs extracts (token, user) from a balance key.
func balanceKeyAddrs(key []byte) (common.Address, common.Address, error) {
	// "bal:" + 42-char token hex + ":" + 42-char user hex
	want := len(prefixBalance) + 42 + 1 + 42
	if len(key) != want {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid balance key length: %d", len(key))
	}
	tokenHex := string(key[len(prefixBalance) : len(prefixBalance)+42])
	userHex := string(key[len(prefixBalance)+43:])
	if !common.IsHexAddress(tokenHex) || !common.IsHexAddress(userHex) {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid address in balance key: %s", key)
	}
	return common.HexToAddress(tokenHex), common.HexToAddress(userHex), nil
}

// orderKey returns the key for an order record.
// Format: "ord:{id:020d}"
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// eventKey returns the key for an event envelope.
// Format: "evt:{seq:020d}"
func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
