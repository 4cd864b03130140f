package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"treasury/internal/app"
	"treasury/internal/http/handlers"
	httpapi "treasury/internal/http/httpapi"
	"treasury/internal/infra"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("service", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infra.SetupTracing(ctx, cfg, "treasury-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	services, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open services")
	}
	defer services.Close()

	if cfg.APIToken == "" {
		logger.Warn().Msg("API_TOKEN not set, API is unauthenticated")
	}

	handlerApp := &handlers.App{
		Issuer:          services.Issuer,
		Store:           services.Store,
		TreasuryAddress: cfg.Ledger.TreasuryAddress,
		Asset:           cfg.Ledger.MonitoredAsset,
		Ready:           services.Store.Ping,
		Logger:          logger,
	}
	router := httpapi.NewRouter(handlerApp, httpapi.Options{
		APIToken:        cfg.APIToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api listening")
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to flush traces")
	}
	logger.Info().Msg("server stopped")
}
