package repo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"treasury/internal/domain"
	"treasury/internal/infra"
)

// Store implements domain.Store on PostgreSQL. Every query goes through the
// marker-checked executor so it shows up in the SQL audit log.
type Store struct {
	sql    infra.TxExecutor
	closer func()
	now    func() time.Time
}

// NewStore wraps an executor. closer releases the underlying pool and may be nil.
func NewStore(sql infra.TxExecutor, closer func()) *Store {
	return &Store{sql: sql, closer: closer, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Close() {
	if s.closer != nil {
		s.closer()
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*domain.DonationRequest, error) {
	var (
		req               domain.DonationRequest
		minimum, received string
		status            string
		verifiedAt        *time.Time
	)
	if err := row.Scan(
		&req.CorrelationToken,
		&req.RequesterID,
		&minimum,
		&req.ReferralAttribution,
		&status,
		&received,
		&req.CreditedTxID,
		&req.CreatedAt,
		&req.ExpiresAt,
		&verifiedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if req.MinimumAmount, err = decimal.NewFromString(minimum); err != nil {
		return nil, fmt.Errorf("parse minimum_amount: %w", err)
	}
	if req.ReceivedAmount, err = decimal.NewFromString(received); err != nil {
		return nil, fmt.Errorf("parse received_amount: %w", err)
	}
	req.Status = domain.RequestStatus(status)
	req.CreatedAt = req.CreatedAt.UTC()
	req.ExpiresAt = req.ExpiresAt.UTC()
	if verifiedAt != nil {
		v := verifiedAt.UTC()
		req.VerifiedAt = &v
	}
	return &req, nil
}

func scanPayout(row scanner) (*domain.ReferralPayout, error) {
	var (
		p      domain.ReferralPayout
		amount string
		status string
	)
	if err := row.Scan(
		&p.ID,
		&p.CorrelationToken,
		&p.Payee,
		&p.PayeeAddress,
		&amount,
		&status,
		&p.Attempts,
		&p.LedgerTxID,
		&p.LastError,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse payout amount: %w", err)
	}
	p.Status = domain.PayoutStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

var _ domain.Store = (*Store)(nil)
