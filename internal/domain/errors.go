package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrDuplicateToken    = errors.New("duplicate correlation token")
	ErrRequestNotPending = errors.New("request is not pending")
	ErrUnknownReferrer   = errors.New("unknown referral party")

	// Ledger and verification taxonomy.
	ErrTransientLedger      = errors.New("transient ledger error")
	ErrMalformedMemo        = errors.New("malformed memo")
	ErrNoMatchingRequest    = errors.New("no matching request")
	ErrInsufficientAmount   = errors.New("insufficient amount")
	ErrExpiredRequest       = errors.New("expired request")
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrPayoutSubmission is retried; ErrPayoutRejected is a definitive refusal.
	ErrPayoutSubmission = errors.New("payout submission failed")
	ErrPayoutRejected   = errors.New("payout rejected")
	ErrPayoutNotFailed  = errors.New("payout is not in FAILED state")
)
