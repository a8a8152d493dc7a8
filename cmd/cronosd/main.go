package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cronos-sched/cronos/internal/account"
	"github.com/cronos-sched/cronos/internal/asset"
	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/config"
	"github.com/cronos-sched/cronos/internal/contract"
	"github.com/cronos-sched/cronos/internal/genesis"
	"github.com/cronos-sched/cronos/internal/infra"
	"github.com/cronos-sched/cronos/internal/keeper"
	"github.com/cronos-sched/cronos/internal/logging"
	"github.com/cronos-sched/cronos/internal/notification"
	"github.com/cronos-sched/cronos/internal/routes"
	"github.com/cronos-sched/cronos/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.LogLevel)

	sym, err := asset.ParseSymbol(cfg.TokenSymbol)
	if err != nil {
		logger.Error("parse token symbol", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := infra.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "error", err)
		return 1
	}
	defer closeStore()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Error("connect redis", "error", err)
		return 1
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	notifier := notification.Multi{notification.NewLoggerNotifier(logger)}
	if cache != nil {
		notifier = append(notifier, notification.NewRedisNotifier(cache, cfg.NotifyChannel))
	}

	accounts := account.NewService(account.NewStoreRepository(st))
	ledger := chain.New(st, auth.NewValidator(accounts), nil, logger)

	boot, err := genesis.Bootstrap(ctx, genesis.Params{
		Contract: contract.Config{
			Account:      cfg.ContractAccount,
			TokenAccount: cfg.TokenAccount,
			Symbol:       sym,
			RunCost:      cfg.RunCost,
			MaxBatch:     cfg.MaxBatch,
		},
		Seed: cfg.GenesisKey,
	}, ledger, accounts, notifier, logger)
	if err != nil {
		logger.Error("genesis", "error", err)
		return 1
	}
	pub := boot.Key.Public().(ed25519.PublicKey)
	if boot.Generated {
		logger.Warn("generated throwaway genesis key; set GENESIS_KEY to keep control of system accounts",
			"public_key", account.EncodeKey(pub))
		if cfg.IsDev() {
			logger.Info("devnet genesis seed", "seed", hex.EncodeToString(boot.Key.Seed()))
		}
	}

	var k *keeper.Keeper
	if cfg.KeeperEnabled {
		k = keeper.New(keeper.Config{Schedule: cfg.KeeperSchedule, Contract: cfg.ContractAccount, Batch: cfg.KeeperBatch}, ledger, logger)
		if err := k.Start(ctx); err != nil {
			logger.Error("start keeper", "error", err)
			return 1
		}
	}

	srv := server.New(routes.Deps{
		Cfg:      cfg,
		Store:    st,
		Cache:    cache,
		Logger:   logger,
		Ledger:   ledger,
		Accounts: accounts,
	})

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()
	logger.Info("node started", "address", cfg.Address(), "contract", cfg.ContractAccount, "symbol", sym.String())

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
	}

	if k != nil {
		k.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		exitCode = 1
	}

	if exitCode == 0 {
		logger.Info("server exited cleanly")
	}
	return exitCode
}
