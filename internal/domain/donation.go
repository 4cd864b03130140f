package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus tracks the lifecycle of a donation request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusVerified RequestStatus = "VERIFIED"
	RequestStatusExpired  RequestStatus = "EXPIRED"
)

// DonationRequest represents one solicited donation, correlated with the
// ledger through its memo token.
type DonationRequest struct {
	CorrelationToken    string
	RequesterID         string
	MinimumAmount       decimal.Decimal
	ReferralAttribution string
	Status              RequestStatus
	ReceivedAmount      decimal.Decimal
	CreditedTxID        string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	VerifiedAt          *time.Time
}

// IsTerminal reports whether the request can no longer change state.
func (r *DonationRequest) IsTerminal() bool {
	return r.Status == RequestStatusVerified || r.Status == RequestStatusExpired
}

// ExpiredAt reports whether the request lifetime ended before now.
func (r *DonationRequest) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

func (r *DonationRequest) HasReferral() bool {
	return r.ReferralAttribution != ""
}

// ProcessedTransaction is the append-only idempotency record of a ledger
// transaction that has been applied to a request.
type ProcessedTransaction struct {
	TxID             string
	CorrelationToken string
	Amount           decimal.Decimal
	Ledger           int64
	Index            int64
	ProcessedAt      time.Time
}

// WithPayment returns the request state after applying p. A payment that
// reaches the minimum verifies the request; a short payment is recorded only
// when p.Accumulate is set and fails with ErrInsufficientAmount otherwise.
func (r DonationRequest) WithPayment(p PaymentApplication) (DonationRequest, error) {
	if r.Status != RequestStatusPending {
		return r, ErrRequestNotPending
	}
	if r.ExpiredAt(p.Now) {
		return r, ErrExpiredRequest
	}

	received := p.Tx.Amount
	if p.Accumulate {
		received = r.ReceivedAmount.Add(p.Tx.Amount)
	}

	next := r
	next.ReceivedAmount = received
	if received.GreaterThanOrEqual(r.MinimumAmount) {
		verifiedAt := p.Now
		next.Status = RequestStatusVerified
		next.CreditedTxID = p.Tx.ID
		next.VerifiedAt = &verifiedAt
		return next, nil
	}
	if !p.Accumulate {
		return r, ErrInsufficientAmount
	}
	return next, nil
}
