package donation

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"treasury/internal/domain"
	"treasury/internal/notify"
)

// EventSink receives outcome events. *notify.Notifier satisfies it.
type EventSink interface {
	Notify(ctx context.Context, ev notify.Event)
}

// PayoutQueue accepts credited requests that owe a referral fee.
type PayoutQueue interface {
	Enqueue(req domain.DonationRequest, credited decimal.Decimal) bool
}

// Engine runs one ledger batch through filter, verifier, referral dispatch
// and notification.
type Engine struct {
	filter   *Filter
	verifier *Verifier
	payouts  PayoutQueue
	events   EventSink
	workers  int
	logger   zerolog.Logger
}

func NewEngine(filter *Filter, verifier *Verifier, payouts PayoutQueue, events EventSink, workers int, logger zerolog.Logger) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		filter:   filter,
		verifier: verifier,
		payouts:  payouts,
		events:   events,
		workers:  workers,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// HandleBatch verifies every relevant transaction of batch and returns the
// outcomes in ledger order. Transactions sharing a token are verified
// sequentially, oldest first; distinct tokens run in parallel. Any store
// failure fails the whole batch so the caller keeps its cursor.
func (e *Engine) HandleBatch(ctx context.Context, batch []domain.LedgerTransaction) (outcomes []domain.Outcome, err error) {
	ctx, span := tracer.Start(ctx, "donation.batch")
	defer func() { endSpan(span, err) }()

	txs := e.filter.Apply(batch)
	span.SetAttributes(attribute.Int("batch.size", len(batch)), attribute.Int("batch.relevant", len(txs)))
	if len(txs) == 0 {
		return nil, nil
	}

	slices.SortStableFunc(txs, func(a, b domain.LedgerTransaction) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})

	outcomes = make([]domain.Outcome, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, group := range e.group(txs) {
		g.Go(func() error {
			for _, i := range group {
				out, err := e.verifier.Verify(gctx, txs[i])
				if err != nil {
					return fmt.Errorf("verify %s: %w", txs[i].ID, err)
				}
				outcomes[i] = out
				e.publish(gctx, txs[i], out)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error().Err(err).Bool("alert", true).Msg("batch verification failed")
		return nil, err
	}
	return outcomes, nil
}

// group returns indexes into txs keyed by correlation token, in order of first
// appearance. Transactions without a token form singleton groups.
func (e *Engine) group(txs []domain.LedgerTransaction) [][]int {
	var groups [][]int
	byToken := map[string]int{}
	for i, tx := range txs {
		token, err := e.verifier.codec.Extract(tx.Memo)
		if err != nil {
			groups = append(groups, []int{i})
			continue
		}
		if g, ok := byToken[token]; ok {
			groups[g] = append(groups[g], i)
			continue
		}
		byToken[token] = len(groups)
		groups = append(groups, []int{i})
	}
	return groups
}

func (e *Engine) publish(ctx context.Context, tx domain.LedgerTransaction, out domain.Outcome) {
	var requester string
	if out.Request != nil {
		requester = out.Request.RequesterID
	}

	switch out.Kind {
	case domain.OutcomeCredited:
		e.events.Notify(ctx, notify.Event{
			Kind:             notify.EventCredited,
			CorrelationToken: out.CorrelationToken,
			RequesterID:      requester,
			TxID:             tx.ID,
			Amount:           tx.Amount.String(),
		})
		if out.Request != nil && out.Request.HasReferral() && e.payouts != nil {
			if !e.payouts.Enqueue(*out.Request, out.Request.ReceivedAmount) {
				e.logger.Warn().Str("token", out.CorrelationToken).Msg("payout queue full, left for recovery")
			}
		}
	case domain.OutcomeRejected:
		e.logger.Debug().Str("tx_id", tx.ID).Str("token", out.CorrelationToken).Str("reason", string(out.Reason)).Msg("transaction rejected")
		e.events.Notify(ctx, notify.Event{
			Kind:             notify.EventRejected,
			CorrelationToken: out.CorrelationToken,
			RequesterID:      requester,
			TxID:             tx.ID,
			Reason:           string(out.Reason),
			Amount:           tx.Amount.String(),
		})
		if out.Reason == domain.ReasonExpired && out.Request != nil {
			e.events.Notify(ctx, notify.Event{
				Kind:             notify.EventExpired,
				CorrelationToken: out.CorrelationToken,
				RequesterID:      requester,
			})
		}
	}
}
