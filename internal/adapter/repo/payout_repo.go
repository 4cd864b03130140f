package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"treasury/internal/domain"
	"treasury/internal/infra"
	"treasury/internal/sqlinline"
)

// CreatePayout inserts a payout for the request token, PENDING unless p says
// otherwise. When a payout for the token already exists it is returned
// unchanged with created=false.
func (s *Store) CreatePayout(ctx context.Context, p *domain.ReferralPayout) (*domain.ReferralPayout, bool, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := p.Status
	if status == "" {
		status = domain.PayoutStatusPending
	}
	now := s.now()
	tag, err := s.sql.Exec(ctx, sqlinline.QInsertReferralPayout,
		id,
		p.CorrelationToken,
		p.Payee,
		p.PayeeAddress,
		p.Amount.String(),
		string(status),
		p.LastError,
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert referral payout: %w", err)
	}

	stored, err := scanPayout(s.sql.QueryRow(ctx, sqlinline.QGetReferralPayoutByToken, p.CorrelationToken))
	if err != nil {
		return nil, false, fmt.Errorf("load referral payout: %w", err)
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (s *Store) GetPayout(ctx context.Context, id string) (*domain.ReferralPayout, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	p, err := scanPayout(s.sql.QueryRow(ctx, sqlinline.QGetReferralPayout, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get referral payout: %w", err)
	}
	return p, nil
}

// ClaimPayout takes the submission claim on a PENDING payout. Concurrent
// claimers race on the conditional update; only one gets the row back.
func (s *Store) ClaimPayout(ctx context.Context, id string, now, until time.Time) (*domain.ReferralPayout, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false, domain.ErrNotFound
	}
	p, err := scanPayout(s.sql.QueryRow(ctx, sqlinline.QClaimReferralPayout, id, now, until))
	if err == nil {
		return p, true, nil
	}
	if !infra.IsNoRows(err) {
		return nil, false, fmt.Errorf("claim referral payout: %w", err)
	}
	current, err := s.GetPayout(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (s *Store) ReleasePayout(ctx context.Context, id string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QReleaseReferralPayout, id); err != nil {
		return fmt.Errorf("release referral payout: %w", err)
	}
	return nil
}

// UpdatePayout persists status, attempts and results. SENT and SKIPPED
// payouts are final and are never overwritten.
func (s *Store) UpdatePayout(ctx context.Context, p *domain.ReferralPayout) error {
	p.UpdatedAt = s.now()
	tag, err := s.sql.Exec(ctx, sqlinline.QUpdateReferralPayout,
		p.ID,
		string(p.Status),
		p.Attempts,
		p.LedgerTxID,
		p.LastError,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update referral payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update referral payout %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) RequeuePayout(ctx context.Context, id string) (*domain.ReferralPayout, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	p, err := scanPayout(s.sql.QueryRow(ctx, sqlinline.QRequeueReferralPayout, id, s.now()))
	if err == nil {
		return p, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("requeue referral payout: %w", err)
	}
	if _, err := s.GetPayout(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrPayoutNotFailed
}

func (s *Store) ListPayouts(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.ReferralPayout, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListReferralPayouts, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list referral payouts: %w", err)
	}
	defer rows.Close()

	var items []domain.ReferralPayout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
