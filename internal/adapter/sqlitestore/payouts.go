package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"treasury/internal/domain"
)

func (s *Store) CreatePayout(ctx context.Context, p *domain.ReferralPayout) (*domain.ReferralPayout, bool, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := p.Status
	if status == "" {
		status = domain.PayoutStatusPending
	}
	now := toMillis(s.now())
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO referral_payouts (
		   id, correlation_token, payee, payee_address, amount, status, attempts,
		   ledger_tx_id, last_error, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?)
		 ON CONFLICT (correlation_token) DO NOTHING`,
		id, p.CorrelationToken, p.Payee, p.PayeeAddress, p.Amount.String(), string(status), p.LastError, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert referral payout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	stored, err := scanPayout(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM referral_payouts WHERE correlation_token = ?`, p.CorrelationToken))
	if err != nil {
		return nil, false, fmt.Errorf("load referral payout: %w", err)
	}
	return stored, n == 1, nil
}

func (s *Store) GetPayout(ctx context.Context, id string) (*domain.ReferralPayout, error) {
	p, err := scanPayout(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM referral_payouts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get referral payout: %w", err)
	}
	return p, nil
}

func (s *Store) ClaimPayout(ctx context.Context, id string, now, until time.Time) (*domain.ReferralPayout, bool, error) {
	p, err := scanPayout(s.sqlDB.QueryRowContext(ctx,
		`UPDATE referral_payouts SET claimed_until = ?
		 WHERE id = ? AND status = 'PENDING'
		   AND (claimed_until IS NULL OR claimed_until < ?)
		 RETURNING `+payoutColumns,
		toMillis(until), id, toMillis(now)))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("claim referral payout: %w", err)
	}
	current, err := s.GetPayout(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (s *Store) ReleasePayout(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `UPDATE referral_payouts SET claimed_until = NULL WHERE id = ?`, id); err != nil {
		return fmt.Errorf("release referral payout: %w", err)
	}
	return nil
}

func (s *Store) UpdatePayout(ctx context.Context, p *domain.ReferralPayout) error {
	p.UpdatedAt = s.now()
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE referral_payouts
		 SET status = ?, attempts = ?, ledger_tx_id = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('SENT', 'SKIPPED')`,
		string(p.Status), p.Attempts, p.LedgerTxID, p.LastError, toMillis(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update referral payout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update referral payout %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) RequeuePayout(ctx context.Context, id string) (*domain.ReferralPayout, error) {
	p, err := scanPayout(s.sqlDB.QueryRowContext(ctx,
		`UPDATE referral_payouts SET status = 'PENDING', last_error = '', claimed_until = NULL, updated_at = ?
		 WHERE id = ? AND status = 'FAILED'
		 RETURNING `+payoutColumns,
		toMillis(s.now()), id))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("requeue referral payout: %w", err)
	}
	if _, err := s.GetPayout(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrPayoutNotFailed
}

func (s *Store) ListPayouts(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.ReferralPayout, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM referral_payouts
		 WHERE (? = '' OR status = ?)
		 ORDER BY created_at DESC
		 LIMIT ?`,
		string(status), string(status), limit)
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
