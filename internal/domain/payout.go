package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "PENDING"
	PayoutStatusSent    PayoutStatus = "SENT"
	PayoutStatusFailed  PayoutStatus = "FAILED"
	// PayoutStatusSkipped marks a referral whose fee truncates to zero.
	PayoutStatusSkipped PayoutStatus = "SKIPPED"
)

// ReferralPayout is one fee disbursement owed to a referring party.
// At most one exists per correlation token.
type ReferralPayout struct {
	ID               string
	CorrelationToken string
	Payee            string
	PayeeAddress     string
	Amount           decimal.Decimal
	Status           PayoutStatus
	Attempts         int
	LedgerTxID       string
	LastError        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
