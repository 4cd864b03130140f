package domain

import (
	"context"
	"time"
)

// PaymentApplication carries one ledger transaction to be applied to a
// pending request.
type PaymentApplication struct {
	CorrelationToken string
	Tx               LedgerTransaction
	// Accumulate adds the amount to previously recorded partial payments
	// instead of judging it on its own.
	Accumulate bool
	Now        time.Time
}

// RequestRepository persists donation requests.
type RequestRepository interface {
	CreateRequest(ctx context.Context, req *DonationRequest) error
	GetRequest(ctx context.Context, token string) (*DonationRequest, error)
	// ExpireRequest moves a PENDING request to EXPIRED and reports whether it did.
	ExpireRequest(ctx context.Context, token string, now time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time, limit int) ([]DonationRequest, error)
	// ApplyPayment records the transaction as processed and updates the request
	// in a single transaction. It returns ErrDuplicateTransaction,
	// ErrRequestNotPending, ErrExpiredRequest or ErrInsufficientAmount without
	// writing anything.
	ApplyPayment(ctx context.Context, p PaymentApplication) (*DonationRequest, error)
	// ListUnpaidReferrals returns verified requests with a referral attribution
	// and no payout row. Zero fees are settled with a SKIPPED row so they never
	// reappear here.
	ListUnpaidReferrals(ctx context.Context, limit int) ([]DonationRequest, error)
}

// TransactionRepository reads the processed transaction record.
type TransactionRepository interface {
	IsProcessed(ctx context.Context, txID string) (bool, error)
}

// CursorRepository persists ledger poll positions.
type CursorRepository interface {
	LoadCursor(ctx context.Context, name string) (int64, bool, error)
	SaveCursor(ctx context.Context, name string, cursor int64) error
}

// PayoutRepository persists referral payouts.
type PayoutRepository interface {
	// CreatePayout inserts the payout unless one already exists for the same
	// token, in which case the existing row is returned with created=false.
	// An empty status is stored as PENDING.
	CreatePayout(ctx context.Context, p *ReferralPayout) (stored *ReferralPayout, created bool, err error)
	GetPayout(ctx context.Context, id string) (*ReferralPayout, error)
	// ClaimPayout reserves a PENDING payout for submission until the given
	// time. It returns claimed=false with the current row when the payout is
	// not PENDING or another submitter holds an unexpired claim.
	ClaimPayout(ctx context.Context, id string, now, until time.Time) (p *ReferralPayout, claimed bool, err error)
	// ReleasePayout drops the submission claim so recovery can pick the
	// payout up without waiting for the claim to lapse.
	ReleasePayout(ctx context.Context, id string) error
	// UpdatePayout persists attempts and results. SENT and SKIPPED are final.
	UpdatePayout(ctx context.Context, p *ReferralPayout) error
	// RequeuePayout moves a FAILED payout back to PENDING and clears its claim.
	RequeuePayout(ctx context.Context, id string) (*ReferralPayout, error)
	ListPayouts(ctx context.Context, status PayoutStatus, limit int) ([]ReferralPayout, error)
}

// Store is the durable owner of every persisted entity.
type Store interface {
	RequestRepository
	TransactionRepository
	CursorRepository
	PayoutRepository
	Ping(ctx context.Context) error
	Close()
}
