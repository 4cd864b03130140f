package donation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"treasury/internal/domain"
)

// VerificationStore is the part of the State Store the verifier needs.
type VerificationStore interface {
	domain.RequestRepository
	domain.TransactionRepository
}

// Verifier classifies one ledger transaction against the pending requests
// and credits it at most once.
type Verifier struct {
	store      VerificationStore
	codec      *MemoCodec
	locks      *KeyLock
	accumulate bool
	now        func() time.Time
	logger     zerolog.Logger
}

func NewVerifier(store VerificationStore, codec *MemoCodec, accumulate bool, logger zerolog.Logger) *Verifier {
	return &Verifier{
		store:      store,
		codec:      codec,
		locks:      NewKeyLock(),
		accumulate: accumulate,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With().Str("component", "verifier").Logger(),
	}
}

// Verify returns the outcome for tx. Rejections are outcomes; the error is
// reserved for store failures.
func (v *Verifier) Verify(ctx context.Context, tx domain.LedgerTransaction) (outcome domain.Outcome, err error) {
	ctx, span := tracer.Start(ctx, "donation.verify")
	span.SetAttributes(attribute.String("tx_id", tx.ID), attribute.Int64("ledger", tx.Ledger))
	defer func() {
		span.SetAttributes(attribute.String("outcome", outcome.String()))
		endSpan(span, err)
	}()

	token, err := v.codec.Extract(tx.Memo)
	if err != nil {
		// A memo format change can hide the token of a transaction that was
		// already applied.
		processed, perr := v.store.IsProcessed(ctx, tx.ID)
		if perr != nil {
			return domain.Outcome{}, fmt.Errorf("check processed: %w", perr)
		}
		if processed {
			return domain.AlreadyProcessed(tx), nil
		}
		return domain.Rejected(tx, "", domain.ReasonNoMemoMatch), nil
	}
	span.SetAttributes(attribute.String("token", token))

	unlock := v.locks.Lock(token)
	defer unlock()

	processed, err := v.store.IsProcessed(ctx, tx.ID)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("check processed: %w", err)
	}
	if processed {
		return domain.AlreadyProcessed(tx), nil
	}

	req, err := v.store.GetRequest(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Rejected(tx, token, domain.ReasonNoMatchingRequest), nil
	}
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("load request: %w", err)
	}
	if req.Status != domain.RequestStatusPending {
		return domain.Rejected(tx, token, domain.ReasonNoMatchingRequest), nil
	}

	now := v.now()
	if req.ExpiredAt(now) {
		return v.expire(ctx, tx, req, now)
	}
	if !v.accumulate && tx.Amount.LessThan(req.MinimumAmount) {
		out := domain.Rejected(tx, token, domain.ReasonInsufficientAmount)
		out.Request = req
		return out, nil
	}

	updated, err := v.store.ApplyPayment(ctx, domain.PaymentApplication{
		CorrelationToken: token,
		Tx:               tx,
		Accumulate:       v.accumulate,
		Now:              now,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateTransaction):
		return domain.AlreadyProcessed(tx), nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrRequestNotPending):
		return domain.Rejected(tx, token, domain.ReasonNoMatchingRequest), nil
	case errors.Is(err, domain.ErrExpiredRequest):
		return v.expire(ctx, tx, req, now)
	case errors.Is(err, domain.ErrInsufficientAmount):
		out := domain.Rejected(tx, token, domain.ReasonInsufficientAmount)
		out.Request = req
		return out, nil
	default:
		return domain.Outcome{}, fmt.Errorf("apply payment: %w", err)
	}

	if updated.Status != domain.RequestStatusVerified {
		v.logger.Info().
			Str("token", token).
			Str("tx_id", tx.ID).
			Str("received", updated.ReceivedAmount.String()).
			Str("minimum", updated.MinimumAmount.String()).
			Msg("partial payment recorded")
		out := domain.Rejected(tx, token, domain.ReasonInsufficientAmount)
		out.Request = updated
		return out, nil
	}

	v.logger.Info().
		Str("token", token).
		Str("tx_id", tx.ID).
		Str("amount", tx.Amount.String()).
		Msg("donation credited")
	return domain.Credited(tx, updated), nil
}

// expire moves the request to EXPIRED. The outcome carries the request only
// when this call performed the transition.
func (v *Verifier) expire(ctx context.Context, tx domain.LedgerTransaction, req *domain.DonationRequest, now time.Time) (domain.Outcome, error) {
	changed, err := v.store.ExpireRequest(ctx, req.CorrelationToken, now)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("expire request: %w", err)
	}
	out := domain.Rejected(tx, req.CorrelationToken, domain.ReasonExpired)
	if changed {
		expired := *req
		expired.Status = domain.RequestStatusExpired
		out.Request = &expired
		v.logger.Info().Str("token", req.CorrelationToken).Str("tx_id", tx.ID).Msg("request expired before payment")
	}
	return out, nil
}
