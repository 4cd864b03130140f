package donation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"treasury/internal/domain"
	"treasury/internal/notify"
)

const sweepBatch = 200

// PayoutRecoverer resubmits payouts left behind by a crash or a full queue.
type PayoutRecoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Sweeper expires overdue requests and runs payout recovery on an interval.
type Sweeper struct {
	store    domain.RequestRepository
	payouts  PayoutRecoverer
	events   EventSink
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

func NewSweeper(store domain.RequestRepository, payouts PayoutRecoverer, events EventSink, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		payouts:  payouts,
		events:   events,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep expires every PENDING request past its deadline and emits one
// EXPIRED event per request. It returns the number of expired requests.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	var total int
	for {
		expired, err := s.store.ExpireOverdue(ctx, s.now(), sweepBatch)
		if err != nil {
			return total, fmt.Errorf("expire overdue: %w", err)
		}
		for _, req := range expired {
			s.events.Notify(ctx, notify.Event{
				Kind:             notify.EventExpired,
				CorrelationToken: req.CorrelationToken,
				RequesterID:      req.RequesterID,
			})
		}
		total += len(expired)
		if len(expired) < sweepBatch {
			break
		}
	}
	if total > 0 {
		s.logger.Info().Int("expired", total).Msg("expired overdue requests")
	}

	if s.payouts != nil {
		if _, err := s.payouts.Recover(ctx); err != nil {
			return total, err
		}
	}
	return total, nil
}
