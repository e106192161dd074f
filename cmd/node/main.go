package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmallek/escrowdex/params"
	"github.com/jmallek/escrowdex/pkg/api"
	"github.com/jmallek/escrowdex/pkg/core/exchange"
	"github.com/jmallek/escrowdex/pkg/core/token"
	"github.com/jmallek/escrowdex/pkg/crypto"
	"github.com/jmallek/escrowdex/pkg/events"
	"github.com/jmallek/escrowdex/pkg/storage"
	"github.com/jmallek/escrowdex/pkg/util"
)

// Demo tokens deployed at startup. Addresses are deterministic, so a
// restarted node rebuilds the same registry over its persisted ledger.
var demoTokens = []struct {
	name   string
	symbol string
	supply uint64 // whole tokens
}{
	{"Dapp University", "DAPP", 1_000_000},
	{"Mock Ether", "mETH", 1_000_000},
	{"Mock Dai", "mDAI", 1_000_000},
}

func main() {
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Storage ----
	store, err := storage.Open(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	// ---- Asset ledgers ----
	registry := token.NewRegistry()
	for _, d := range demoTokens {
		t, err := registry.Deploy(cfg.Node.Deployer, d.name, d.symbol, d.supply)
		if err != nil {
			sugar.Fatalw("token_deploy_failed", "symbol", d.symbol, "err", err)
		}
		sugar.Infow("token_deployed", "symbol", d.symbol, "address", t.Address().Hex())
	}

	// ---- Exchange ----
	exchangeAddr := crypto.ContractAddress(cfg.Node.Deployer, "EXCHANGE", 0)
	x, err := exchange.New(exchangeAddr, cfg.Fee.Account, cfg.Fee.Percent, registry, store, logger, util.RealClock{})
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}
	sugar.Infow("exchange_ready",
		"address", exchangeAddr.Hex(),
		"fee_account", cfg.Fee.Account.Hex(),
		"fee_percent", cfg.Fee.Percent,
		"orders", x.OrderCount())

	// ---- Event feed ----
	feed := events.NewFeed()
	x.OnEvent = feed.Publish

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(x, registry, store, feed, logger)
	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting_down")
}
