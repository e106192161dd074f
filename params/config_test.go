package params

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Fee.Percent != 10 {
		t.Errorf("default fee percent: got %d, want 10", cfg.Fee.Percent)
	}
	if cfg.Fee.Account == (common.Address{}) {
		t.Error("default fee account is the zero address")
	}
	if cfg.Node.DBPath == "" || cfg.Node.APIAddr == "" || cfg.Node.LogFile == "" {
		t.Errorf("incomplete node defaults: %+v", cfg.Node)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("FEE_ACCOUNT", "0x00000000000000000000000000000000000000aa")
	t.Setenv("FEE_PERCENT", "3")
	t.Setenv("DB_PATH", "/tmp/other.db")
	t.Setenv("API_ADDR", ":9090")

	cfg, err := LoadFromEnv("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := common.HexToAddress("0x00000000000000000000000000000000000000aa"); cfg.Fee.Account != want {
		t.Errorf("fee account: got %s", cfg.Fee.Account.Hex())
	}
	if cfg.Fee.Percent != 3 {
		t.Errorf("fee percent: got %d, want 3", cfg.Fee.Percent)
	}
	if cfg.Node.DBPath != "/tmp/other.db" {
		t.Errorf("db path: got %s", cfg.Node.DBPath)
	}
	if cfg.Node.APIAddr != ":9090" {
		t.Errorf("api addr: got %s", cfg.Node.APIAddr)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("FEE_PERCENT", "101")
	if _, err := LoadFromEnv(""); err == nil {
		t.Error("expected error for FEE_PERCENT > 100")
	}

	t.Setenv("FEE_PERCENT", "")
	t.Setenv("FEE_ACCOUNT", "not-an-address")
	if _, err := LoadFromEnv(""); err == nil {
		t.Error("expected error for malformed FEE_ACCOUNT")
	}

	t.Setenv("FEE_ACCOUNT", "")
	t.Setenv("DEPLOYER", "0x123")
	if _, err := LoadFromEnv(""); err == nil {
		t.Error("expected error for malformed DEPLOYER")
	}
}
