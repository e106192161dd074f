package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestContractAddressDeterministic(t *testing.T) {
	deployer := common.HexToAddress("0xDE00000000000000000000000000000000000001")

	a := ContractAddress(deployer, "DAPP", 0)
	b := ContractAddress(deployer, "DAPP", 0)
	if a != b {
		t.Errorf("same inputs produced different addresses: %s vs %s", a.Hex(), b.Hex())
	}
	if a == (common.Address{}) {
		t.Error("derived the zero address")
	}
}

func TestContractAddressVariesWithInputs(t *testing.T) {
	deployer := common.HexToAddress("0xDE00000000000000000000000000000000000001")
	other := common.HexToAddress("0xDE00000000000000000000000000000000000002")

	base := ContractAddress(deployer, "DAPP", 0)
	if got := ContractAddress(deployer, "DAPP", 1); got == base {
		t.Error("nonce change did not change the address")
	}
	if got := ContractAddress(deployer, "mETH", 0); got == base {
		t.Error("label change did not change the address")
	}
	if got := ContractAddress(other, "DAPP", 0); got == base {
		t.Error("deployer change did not change the address")
	}
}
