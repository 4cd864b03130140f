// Package app assembles the components shared by the api, worker and
// donationctl binaries.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"treasury/internal/adapter"
	"treasury/internal/domain"
	"treasury/internal/donation"
	"treasury/internal/infra"
	"treasury/internal/ledger"
	"treasury/internal/ledger/signer"
	"treasury/internal/notify"
	"treasury/internal/referral"
)

type Services struct {
	Config   *infra.Config
	Logger   zerolog.Logger
	Store    domain.Store
	Redis    *redis.Client
	Notifier *notify.Notifier
	Registry *referral.Registry
	Codec    *donation.MemoCodec
	Issuer   *donation.Issuer
}

// Open connects the store and Redis and loads the referral registry.
func Open(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Services, error) {
	registry, err := referral.NewRegistry(cfg.Referral)
	if err != nil {
		return nil, err
	}

	store, err := adapter.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	var publisher notify.Publisher
	if rdb != nil {
		publisher = rdb
	}

	codec := donation.NewMemoCodec(cfg.Donation.MemoPrefix, cfg.Donation.TokenBytes)
	return &Services{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Redis:    rdb,
		Notifier: notify.New(publisher, cfg.Donation.NotifyTimeout, logger),
		Registry: registry,
		Codec:    codec,
		Issuer:   donation.NewIssuer(store, codec, registry, cfg.Donation.DefaultMinimumAmount, cfg.Donation.RequestTTL, logger),
	}, nil
}

// Submitter returns the signing-service client, or the logging stub when no
// signer is configured.
func (s *Services) Submitter() ledger.Submitter {
	if s.Config.Payout.SignerURL == "" {
		s.Logger.Warn().Msg("SIGNER_URL not set, payouts go to the stub submitter")
		return ledger.NewStubSubmitter(s.Logger)
	}
	return signer.NewClient(s.Config.Payout.SignerURL, s.Config.Payout.SignerToken)
}

func (s *Services) Dispatcher(submitter ledger.Submitter) *donation.Dispatcher {
	p := s.Config.Payout
	return donation.NewDispatcher(donation.DispatcherConfig{
		SourceAddress:  p.SourceAddress,
		Asset:          s.Config.Ledger.MonitoredAsset,
		Decimals:       p.Decimals,
		MaxAttempts:    p.MaxAttempts,
		BackoffInitial: p.BackoffInitial,
		BackoffMax:     p.BackoffMax,
		SubmitTimeout:  p.SubmitTimeout,
		Workers:        p.Workers,
	}, s.Store, referral.NewResolver(s.Registry), submitter, s.Notifier, s.Logger)
}

// Close waits for pending notifications and releases connections.
func (s *Services) Close() {
	s.Notifier.Wait()
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	s.Store.Close()
}
