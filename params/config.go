package params

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Fee is the immutable exchange fee policy, fixed at construction.
type Fee struct {
	Account common.Address // receives the protocol fee on every fill
	Percent uint64         // integer percent, 0..100
}

type Node struct {
	// Deployer is the account that receives the initial supply of tokens
	// deployed at startup and anchors contract address derivation.
	Deployer common.Address
	DBPath   string
	APIAddr  string
	LogFile  string
}

type Config struct {
	Fee  Fee
	Node Node
}

func Default() Config {
	return Config{
		Fee: Fee{
			Account: common.HexToAddress("0xfee0000000000000000000000000000000000000"),
			Percent: 10,
		},
		Node: Node{
			Deployer: common.HexToAddress("0xde00000000000000000000000000000000000001"),
			DBPath:   "data/exchange.db",
			APIAddr:  ":8080",
			LogFile:  "data/node.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("FEE_ACCOUNT"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("FEE_ACCOUNT is not a hex address: %q", v)
		}
		cfg.Fee.Account = common.HexToAddress(v)
	}

	if v := os.Getenv("FEE_PERCENT"); v != "" {
		pct, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("FEE_PERCENT: %w", err)
		}
		cfg.Fee.Percent = pct
	}
	if cfg.Fee.Percent > 100 {
		return cfg, fmt.Errorf("FEE_PERCENT out of range: %d", cfg.Fee.Percent)
	}

	if v := os.Getenv("DEPLOYER"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("DEPLOYER is not a hex address: %q", v)
		}
		cfg.Node.Deployer = common.HexToAddress(v)
	}

	cfg.Node.DBPath = getEnv("DB_PATH", cfg.Node.DBPath)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
