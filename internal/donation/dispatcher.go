package donation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"treasury/internal/domain"
	"treasury/internal/ledger"
	"treasury/internal/notify"
	"treasury/internal/referral"
)

const (
	defaultQueueSize = 256
	recoveryBatch    = 100
)

// PayoutStore is the part of the State Store the dispatcher needs.
type PayoutStore interface {
	domain.PayoutRepository
	ListUnpaidReferrals(ctx context.Context, limit int) ([]domain.DonationRequest, error)
}

type DispatcherConfig struct {
	SourceAddress  string
	Asset          string
	Decimals       int32
	MaxAttempts    uint
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	SubmitTimeout  time.Duration
	// ClaimTTL bounds how long one submitter owns a PENDING payout. It must
	// outlast a full retry sequence; zero derives it from the other limits.
	ClaimTTL  time.Duration
	Workers   int
	QueueSize int
}

type payoutJob struct {
	req      domain.DonationRequest
	credited decimal.Decimal
}

// Dispatcher turns credited referral requests into fee payouts. Jobs arrive
// through Enqueue and run on a fixed pool of workers.
type Dispatcher struct {
	cfg       DispatcherConfig
	store     PayoutStore
	resolver  *referral.Resolver
	submitter ledger.Submitter
	events    EventSink
	locks     *KeyLock
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.RWMutex
	queue   chan payoutJob
	stopped bool
	wg      sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig, store PayoutStore, resolver *referral.Resolver, submitter ledger.Submitter, events EventSink, logger zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = time.Duration(cfg.MaxAttempts)*(cfg.SubmitTimeout+cfg.BackoffMax) + time.Minute
	}
	return &Dispatcher{
		cfg:       cfg,
		store:     store,
		resolver:  resolver,
		submitter: submitter,
		events:    events,
		locks:     NewKeyLock(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		queue:     make(chan payoutJob, cfg.QueueSize),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.logger.Info().Int("workers", d.cfg.Workers).Msg("payout workers starting")
	for i := 1; i <= d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for job := range d.queue {
		if _, err := d.Dispatch(context.Background(), job.req, job.credited); err != nil {
			d.logger.Error().Err(err).Int("worker", id).Str("token", job.req.CorrelationToken).Msg("payout dispatch failed")
		}
	}
}

// Stop refuses new jobs and waits until queued and in-flight payouts finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.Info().Msg("payout workers stopped")
}

// Enqueue schedules a payout without blocking. It reports false when the
// queue is full or stopped; Recover picks such requests up later.
func (d *Dispatcher) Enqueue(req domain.DonationRequest, credited decimal.Decimal) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return false
	}
	select {
	case d.queue <- payoutJob{req: req, credited: credited}:
		return true
	default:
		return false
	}
}

// Dispatch creates the payout owed for a credited request and submits it.
// A request without referral attribution yields a nil payout. A fee that
// truncates to zero is settled as a SKIPPED payout. An existing payout that
// is no longer PENDING, or that another submitter has claimed, is returned
// untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DonationRequest, credited decimal.Decimal) (*domain.ReferralPayout, error) {
	if req.Status != domain.RequestStatusVerified {
		return nil, fmt.Errorf("%w: request %s is %s", domain.ErrInvalidRequest, req.CorrelationToken, req.Status)
	}
	ref, ok := d.resolver.Resolve(&req)
	if !ok {
		return nil, nil
	}
	amount := credited.Mul(ref.FeeFraction).Truncate(d.cfg.Decimals)
	status := domain.PayoutStatusPending
	lastError := ""
	if !amount.IsPositive() {
		amount = decimal.Zero
		status = domain.PayoutStatusSkipped
		lastError = "referral fee truncates to zero"
	}

	unlock := d.locks.Lock(req.CorrelationToken)
	defer unlock()

	now := d.now()
	payout, created, err := d.store.CreatePayout(ctx, &domain.ReferralPayout{
		CorrelationToken: req.CorrelationToken,
		Payee:            ref.Party,
		PayeeAddress:     ref.Address,
		Amount:           amount,
		Status:           status,
		LastError:        lastError,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("create payout: %w", err)
	}
	if created {
		d.logger.Info().
			Str("payout_id", payout.ID).
			Str("token", req.CorrelationToken).
			Str("party", ref.Party).
			Str("amount", amount.String()).
			Str("status", string(payout.Status)).
			Msg("referral payout created")
	}
	if payout.Status != domain.PayoutStatusPending {
		return payout, nil
	}
	return d.claimAndSubmit(ctx, payout.ID)
}

// Retry moves a FAILED payout back to PENDING and submits it again.
func (d *Dispatcher) Retry(ctx context.Context, id string) (*domain.ReferralPayout, error) {
	requeued, err := d.store.RequeuePayout(ctx, id)
	if err != nil {
		return nil, err
	}
	d.logger.Info().Str("payout_id", id).Str("token", requeued.CorrelationToken).Msg("payout requeued")
	return d.resume(ctx, requeued.ID, requeued.CorrelationToken)
}

func (d *Dispatcher) resume(ctx context.Context, id, token string) (*domain.ReferralPayout, error) {
	unlock := d.locks.Lock(token)
	defer unlock()
	return d.claimAndSubmit(ctx, id)
}

// claimAndSubmit submits the payout only if this dispatcher wins the store
// claim, so separate processes never send the same fee twice.
func (d *Dispatcher) claimAndSubmit(ctx context.Context, id string) (*domain.ReferralPayout, error) {
	now := d.now()
	payout, claimed, err := d.store.ClaimPayout(ctx, id, now, now.Add(d.cfg.ClaimTTL))
	if err != nil {
		return nil, fmt.Errorf("claim payout: %w", err)
	}
	if !claimed {
		if payout.Status == domain.PayoutStatusPending {
			d.logger.Debug().Str("payout_id", id).Msg("payout claimed by another submitter")
		}
		return payout, nil
	}
	return d.submit(ctx, payout)
}

// Recover resubmits PENDING payouts and dispatches credited referral requests
// that never got a payout row. It returns how many payouts it touched.
func (d *Dispatcher) Recover(ctx context.Context) (int, error) {
	pending, err := d.store.ListPayouts(ctx, domain.PayoutStatusPending, recoveryBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending payouts: %w", err)
	}
	var touched int
	for _, p := range pending {
		if _, err := d.resume(ctx, p.ID, p.CorrelationToken); err != nil {
			d.logger.Warn().Err(err).Str("payout_id", p.ID).Msg("recover pending payout")
		}
		touched++
	}

	unpaid, err := d.store.ListUnpaidReferrals(ctx, recoveryBatch)
	if err != nil {
		return touched, fmt.Errorf("list unpaid referrals: %w", err)
	}
	for _, req := range unpaid {
		payout, err := d.Dispatch(ctx, req, req.ReceivedAmount)
		if err != nil {
			d.logger.Warn().Err(err).Str("token", req.CorrelationToken).Msg("recover unpaid referral")
		}
		if payout != nil {
			touched++
		}
	}
	if touched > 0 {
		d.logger.Info().Int("payouts", touched).Msg("payout recovery finished")
	}
	return touched, nil
}

func (d *Dispatcher) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.BackoffInitial
	bo.MaxInterval = d.cfg.BackoffMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	return bo
}

// submit sends a claimed PENDING payout, persisting every attempt. The caller
// holds the token lock.
func (d *Dispatcher) submit(ctx context.Context, p *domain.ReferralPayout) (_ *domain.ReferralPayout, err error) {
	ctx, span := tracer.Start(ctx, "donation.payout")
	span.SetAttributes(attribute.String("payout_id", p.ID), attribute.String("token", p.CorrelationToken))
	defer func() { endSpan(span, err) }()

	if p.PayeeAddress == "" {
		return d.fail(ctx, p, fmt.Errorf("%w: no address for referral party %q", domain.ErrPayoutRejected, p.Payee))
	}

	transfer := ledger.TransferRequest{
		Reference: p.ID,
		From:      d.cfg.SourceAddress,
		To:        p.PayeeAddress,
		Asset:     d.cfg.Asset,
		Amount:    p.Amount,
		Memo:      "referral fee for " + p.CorrelationToken,
	}
	txID, err := backoff.Retry(ctx, func() (string, error) {
		p.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.SubmitTimeout)
		txID, err := d.submitter.SubmitTransfer(attemptCtx, transfer)
		cancel()

		p.UpdatedAt = d.now()
		p.LastError = ""
		if err != nil {
			p.LastError = err.Error()
		}
		if uerr := d.store.UpdatePayout(context.WithoutCancel(ctx), p); uerr != nil {
			return "", backoff.Permanent(fmt.Errorf("persist attempt: %w", uerr))
		}
		if err != nil {
			d.logger.Warn().Err(err).Str("payout_id", p.ID).Int("attempt", p.Attempts).Msg("payout attempt failed")
			if errors.Is(err, domain.ErrPayoutRejected) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return txID, nil
	}, backoff.WithBackOff(d.newBackOff()), backoff.WithMaxTries(d.cfg.MaxAttempts))

	if err != nil {
		if ctx.Err() != nil {
			// Left PENDING; recovery resubmits it under the same reference.
			if rerr := d.store.ReleasePayout(context.WithoutCancel(ctx), p.ID); rerr != nil {
				d.logger.Warn().Err(rerr).Str("payout_id", p.ID).Msg("release payout claim")
			}
			return p, ctx.Err()
		}
		return d.fail(ctx, p, err)
	}

	p.Status = domain.PayoutStatusSent
	p.LedgerTxID = txID
	p.UpdatedAt = d.now()
	if err := d.store.UpdatePayout(context.WithoutCancel(ctx), p); err != nil {
		d.logger.Error().Err(err).Bool("alert", true).Str("payout_id", p.ID).Str("ledger_tx_id", txID).Msg("payout sent but not recorded")
		return p, fmt.Errorf("record sent payout: %w", err)
	}
	d.logger.Info().
		Str("payout_id", p.ID).
		Str("token", p.CorrelationToken).
		Str("ledger_tx_id", txID).
		Str("amount", p.Amount.String()).
		Msg("referral payout sent")
	d.events.Notify(ctx, notify.Event{
		Kind:             notify.EventPayoutSent,
		CorrelationToken: p.CorrelationToken,
		PayoutID:         p.ID,
		TxID:             txID,
		Amount:           p.Amount.String(),
	})
	return p, nil
}

func (d *Dispatcher) fail(ctx context.Context, p *domain.ReferralPayout, cause error) (*domain.ReferralPayout, error) {
	p.Status = domain.PayoutStatusFailed
	p.LastError = cause.Error()
	p.UpdatedAt = d.now()
	if err := d.store.UpdatePayout(context.WithoutCancel(ctx), p); err != nil {
		return p, fmt.Errorf("record failed payout: %w", err)
	}
	d.logger.Error().
		Err(cause).
		Bool("alert", true).
		Str("payout_id", p.ID).
		Str("token", p.CorrelationToken).
		Int("attempts", p.Attempts).
		Msg("referral payout failed")
	d.events.Notify(ctx, notify.Event{
		Kind:             notify.EventPayoutFailed,
		CorrelationToken: p.CorrelationToken,
		PayoutID:         p.ID,
		Amount:           p.Amount.String(),
		Error:            cause.Error(),
	})
	return p, fmt.Errorf("%w: payout %s: %w", domain.ErrPayoutSubmission, p.ID, cause)
}
