package crypto

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// ContractAddress derives a deterministic 20-byte address for an in-process
// ledger contract, CREATE-style: keccak256(deployer || label || nonce)[12:].
// The same deployer, label and nonce always yield the same address, so a
// restarted node rebuilds an identical token registry.
func ContractAddress(deployer common.Address, label string, nonce uint64) common.Address {
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)

	h := sha3.NewLegacyKeccak256()
	h.Write(deployer[:])
	h.Write([]byte(label))
	h.Write(nb[:])
	sum := h.Sum(nil)

	return common.BytesToAddress(sum[12:])
}
