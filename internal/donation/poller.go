package donation

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"treasury/internal/domain"
	"treasury/internal/ledger"
)

// BatchHandler processes one batch of ledger transactions. The poller only
// advances its cursor after a nil return.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch []domain.LedgerTransaction) ([]domain.Outcome, error)
}

type PollerConfig struct {
	Address        string
	Interval       time.Duration
	FetchTimeout   time.Duration
	Overlap        int64
	StartOffset    int64
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Poller watches the treasury address and feeds new activity to a handler.
type Poller struct {
	cfg     PollerConfig
	reader  ledger.Reader
	cursors domain.CursorRepository
	handler BatchHandler
	logger  zerolog.Logger
}

func NewPoller(cfg PollerConfig, reader ledger.Reader, cursors domain.CursorRepository, handler BatchHandler, logger zerolog.Logger) *Poller {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 2 * time.Second
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	return &Poller{
		cfg:     cfg,
		reader:  reader,
		cursors: cursors,
		handler: handler,
		logger:  logger.With().Str("component", "poller").Str("address", cfg.Address).Logger(),
	}
}

func (p *Poller) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.BackoffInitial
	bo.MaxInterval = p.cfg.BackoffMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	return bo
}

// Run polls until ctx is cancelled. A failed tick keeps the cursor and the
// next attempt waits for an exponentially growing delay.
func (p *Poller) Run(ctx context.Context) error {
	bo := p.newBackOff()
	p.logger.Info().Dur("interval", p.cfg.Interval).Msg("poller started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller stopped")
			return nil
		case <-timer.C:
		}

		wait := p.cfg.Interval
		if err := p.Tick(ctx); err != nil {
			wait = bo.NextBackOff()
			p.logger.Warn().Err(err).Dur("retry_in", wait).Msg("poll failed")
		} else {
			bo.Reset()
		}
		timer.Reset(wait)
	}
}

// Tick fetches activity since the stored cursor, hands it to the handler and
// persists the new cursor. The batch runs detached from ctx cancellation so a
// shutdown never interrupts a half-processed batch.
func (p *Poller) Tick(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "donation.poll")
	defer func() { endSpan(span, err) }()

	cursor, err := p.startCursor(ctx)
	if err != nil {
		return err
	}
	since := max(cursor-p.cfg.Overlap, 0)
	span.SetAttributes(attribute.Int64("cursor", cursor), attribute.Int64("since", since))

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	activity, err := p.reader.FetchActivity(fetchCtx, p.cfg.Address, since)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch activity: %w", err)
	}

	work := context.WithoutCancel(ctx)
	outcomes, err := p.handler.HandleBatch(work, activity.Transactions)
	if err != nil {
		return fmt.Errorf("handle batch: %w", err)
	}

	next := max(activity.Cursor, cursor)
	if err := p.cursors.SaveCursor(work, p.cfg.Address, next); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	p.logger.Debug().
		Int64("since", since).
		Int64("cursor", next).
		Int("transactions", len(activity.Transactions)).
		Int("outcomes", len(outcomes)).
		Msg("poll complete")
	return nil
}

func (p *Poller) startCursor(ctx context.Context) (int64, error) {
	cursor, ok, err := p.cursors.LoadCursor(ctx, p.cfg.Address)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	if ok {
		return cursor, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()
	latest, err := p.reader.LatestCursor(fetchCtx)
	if err != nil {
		return 0, fmt.Errorf("latest cursor: %w", err)
	}
	start := max(latest-p.cfg.StartOffset, 0)
	p.logger.Info().Int64("latest", latest).Int64("cursor", start).Msg("no stored cursor, starting behind latest ledger")
	return start, nil
}
