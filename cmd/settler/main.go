package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"betledger/internal/config"
	cronrunner "betledger/internal/cron"
	"betledger/internal/db"
	"betledger/internal/logger"
	"betledger/internal/notify"
	gormrepository "betledger/internal/repository/gorm"
	"betledger/internal/service"
)

func main() {
	cfgPath := os.Getenv("BL_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("BL_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ledgerDB, err := db.Open(cfg.LedgerDB)
	if err != nil {
		logger.Fatal("ledger db open failed", zap.Error(err))
	}
	defer ledgerDB.Close()

	marketDB, err := db.Open(cfg.MarketDB)
	if err != nil {
		logger.Fatal("market db open failed", zap.Error(err))
	}
	defer marketDB.Close()

	if err := ledgerDB.Ping(); err != nil {
		logger.Fatal("ledger db unreachable", zap.Error(err))
	}
	if err := marketDB.Ping(); err != nil {
		logger.Fatal("market db unreachable", zap.Error(err))
	}
	if err := ledgerDB.SetTimezone(cfg.LedgerDB.Timezone); err != nil {
		logger.Warn("failed to set ledger db timezone", zap.Error(err))
	}
	if err := marketDB.SetTimezone(cfg.MarketDB.Timezone); err != nil {
		logger.Warn("failed to set market db timezone", zap.Error(err))
	}
	if err := db.AutoMigrateLedger(ledgerDB); err != nil {
		logger.Fatal("ledger auto-migrate failed", zap.Error(err))
	}
	if err := db.AutoMigrateMarket(marketDB); err != nil {
		logger.Fatal("market auto-migrate failed", zap.Error(err))
	}

	ledgerStore := gormrepository.NewLedger(ledgerDB.Gorm, cfg.LedgerDB.TxTimeout)
	marketStore := gormrepository.NewMarket(marketDB.Gorm)

	settingsSvc := &service.SystemSettingsService{Repo: ledgerStore}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	notifier := &notify.Async{
		Inner:  &notify.LogNotifier{Logger: logger},
		Logger: logger,
	}

	settlementSvc := &service.SettlementService{
		Ledger:   ledgerStore,
		Markets:  marketStore,
		Notifier: notifier,
		Flags:    settingsSvc,
		Logger:   logger,
		Config:   cfg.Settlement,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("settler starting",
		zap.String("env", cfg.App.Env),
		zap.Bool("cron", cfg.Cron.Enabled),
		zap.String("sweep_schedule", cfg.Cron.SettlementSweep),
	)

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		_, err := cronRunner.Add("settlement_sweep", cfg.Cron.SettlementSweep, func(ctx context.Context) {
			if !settingsSvc.IsEnabled(ctx, service.FeatureSettlementSweep, true) {
				return
			}
			if err := settlementSvc.SweepOnce(ctx); err != nil {
				logger.Warn("settlement sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register settlement sweep failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()

		// One pass right away so pending bets on markets resolved before a
		// restart are repaired without waiting for the first scheduled tick.
		if settingsSvc.IsEnabled(ctx, service.FeatureSettlementSweep, true) {
			if err := settlementSvc.SweepOnce(ctx); err != nil {
				logger.Warn("initial settlement sweep failed", zap.Error(err))
			}
		}
	} else {
		go func() {
			if err := settlementSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("settlement sweeper stopped", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown requested")
}
