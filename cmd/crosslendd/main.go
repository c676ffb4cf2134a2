package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"crosslend/config"
	"crosslend/crypto"
	"crosslend/native/bank"
	nativecommon "crosslend/native/common"
	"crosslend/native/lending"
	"crosslend/observability/logging"
	"crosslend/rpc"
	"crosslend/storage"
	"crosslend/storage/ledgerstate"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("crosslendd", cfg.Env, cfg.LogFile)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	vault := bank.NewVault(db)
	oracle := lending.NewStaticOracle()
	ledger := lending.NewLedger(ledgerstate.New(db), oracle, vault)
	pauses := nativecommon.NewPauseSet()
	ledger.SetPauses(pauses)

	if err := applyConfig(cfg, vault, oracle, ledger); err != nil {
		logger.Error("Failed to apply configuration", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(ledger, logger)
	server.SetPauses(pauses)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		logger.Error("RPC server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// applyConfig provisions tokens, oracle quotes, and risk parameters from the
// configuration file. All steps are idempotent across restarts.
func applyConfig(cfg *config.Config, vault *bank.Vault, oracle *lending.StaticOracle, ledger *lending.Ledger) error {
	for _, token := range cfg.Tokens {
		addr, err := crypto.DecodeAddress(token.Address)
		if err != nil {
			return fmt.Errorf("token %s: %w", token.Address, err)
		}
		if err := vault.RegisterToken(addr, token.Decimals); err != nil {
			return err
		}
	}
	for _, price := range cfg.Prices {
		source, err := crypto.DecodeAddress(price.Source)
		if err != nil {
			return fmt.Errorf("price source %s: %w", price.Source, err)
		}
		value, ok := new(big.Int).SetString(price.Price, 10)
		if !ok {
			return fmt.Errorf("price for %s: invalid value %q", price.Source, price.Price)
		}
		oracle.SetPrice(source, value)
	}
	if err := ledger.SetLiquidationThreshold(cfg.Lending.LiquidationThresholdBps); err != nil {
		return err
	}
	if cfg.Lending.TeamAddress != "" {
		team, err := crypto.DecodeAddress(cfg.Lending.TeamAddress)
		if err != nil {
			return fmt.Errorf("team address: %w", err)
		}
		if err := ledger.SetTeamAddress(team); err != nil {
			return err
		}
	}
	return nil
}
