package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"treasury/internal/app"
	"treasury/internal/donation"
	"treasury/internal/infra"
	"treasury/internal/ledger/xrpl"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infra.SetupTracing(ctx, cfg, "treasury-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to set up tracing")
	}

	services, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to open services")
	}
	defer services.Close()

	dispatcher := services.Dispatcher(services.Submitter())
	dispatcher.Start()

	verifier := donation.NewVerifier(services.Store, services.Codec, cfg.Donation.AccumulatePartial, logger)
	filter := donation.NewFilter(cfg.Ledger.TreasuryAddress, cfg.Ledger.MonitoredAsset, logger)
	engine := donation.NewEngine(filter, verifier, dispatcher, services.Notifier, cfg.Ledger.VerifyWorkers, logger)

	poller := donation.NewPoller(donation.PollerConfig{
		Address:        cfg.Ledger.TreasuryAddress,
		Interval:       cfg.Ledger.PollInterval,
		FetchTimeout:   cfg.Ledger.FetchTimeout,
		Overlap:        cfg.Ledger.Overlap,
		StartOffset:    cfg.Ledger.StartOffset,
		BackoffInitial: cfg.Ledger.BackoffInitial,
		BackoffMax:     cfg.Ledger.BackoffMax,
	}, xrpl.NewClient(cfg.Ledger.RPCEndpoint, logger), services.Store, engine, logger)
	sweeper := donation.NewSweeper(services.Store, dispatcher, services.Notifier, cfg.Donation.ExpirySweepInterval, logger)

	if n, err := dispatcher.Recover(ctx); err != nil {
		logger.Warn().Err(err).Msg("worker: startup payout recovery failed")
	} else if n > 0 {
		logger.Info().Int("payouts", n).Msg("worker: recovered payouts")
	}

	logger.Info().
		Str("treasury", cfg.Ledger.TreasuryAddress).
		Str("asset", cfg.Ledger.MonitoredAsset).
		Msg("worker: started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}

	dispatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("worker: failed to flush traces")
	}
	logger.Info().Msg("worker: stopped")
}
