package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"treasury/internal/domain"
)

func (s *Store) CreateRequest(ctx context.Context, req *domain.DonationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO donation_requests (
		   correlation_token, requester_id, minimum_amount, referral_attribution,
		   status, received_amount, created_at, expires_at
		 ) VALUES (?, ?, ?, ?, 'PENDING', '0', ?, ?)`,
		req.CorrelationToken,
		req.RequesterID,
		req.MinimumAmount.String(),
		req.ReferralAttribution,
		toMillis(req.CreatedAt),
		toMillis(req.ExpiresAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return domain.ErrDuplicateToken
		}
		return fmt.Errorf("insert donation request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, token string) (*domain.DonationRequest, error) {
	req, err := scanRequest(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM donation_requests WHERE correlation_token = ?`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get donation request: %w", err)
	}
	return req, nil
}

func (s *Store) ExpireRequest(ctx context.Context, token string, now time.Time) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE donation_requests SET status = 'EXPIRED'
		 WHERE correlation_token = ? AND status = 'PENDING' AND expires_at < ?`,
		token, toMillis(now))
	if err != nil {
		return false, fmt.Errorf("expire donation request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ExpireOverdue(ctx context.Context, now time.Time, limit int) ([]domain.DonationRequest, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`UPDATE donation_requests SET status = 'EXPIRED'
		 WHERE correlation_token IN (
		   SELECT correlation_token FROM donation_requests
		   WHERE status = 'PENDING' AND expires_at < ?
		   ORDER BY expires_at
		   LIMIT ?
		 ) AND status = 'PENDING'
		 RETURNING `+requestColumns,
		toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("expire overdue requests: %w", err)
	}
	defer rows.Close()

	var items []domain.DonationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ApplyPayment(ctx context.Context, p domain.PaymentApplication) (*domain.DonationRequest, error) {
	var result *domain.DonationRequest
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanRequest(tx.QueryRowContext(ctx,
			`SELECT `+requestColumns+` FROM donation_requests WHERE correlation_token = ?`, p.CorrelationToken))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("load donation request: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO processed_transactions (tx_id, correlation_token, amount, ledger_index, tx_index, processed_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (tx_id) DO NOTHING`,
			p.Tx.ID, p.CorrelationToken, p.Tx.Amount.String(), p.Tx.Ledger, p.Tx.Index, toMillis(p.Now))
		if err != nil {
			return fmt.Errorf("insert processed transaction: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrDuplicateTransaction
		}

		next, err := current.WithPayment(p)
		if err != nil {
			return err
		}

		if next.Status == domain.RequestStatusVerified {
			res, err = tx.ExecContext(ctx,
				`UPDATE donation_requests
				 SET status = 'VERIFIED', received_amount = ?, credited_tx_id = ?, verified_at = ?
				 WHERE correlation_token = ? AND status = 'PENDING'`,
				next.ReceivedAmount.String(), next.CreditedTxID, toMillis(p.Now), next.CorrelationToken)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE donation_requests SET received_amount = ?
				 WHERE correlation_token = ? AND status = 'PENDING'`,
				next.ReceivedAmount.String(), next.CorrelationToken)
		}
		if err != nil {
			return fmt.Errorf("update donation request: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return domain.ErrRequestNotPending
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListUnpaidReferrals(ctx context.Context, limit int) ([]domain.DonationRequest, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM donation_requests d
		 WHERE d.status = 'VERIFIED'
		   AND d.referral_attribution <> ''
		   AND NOT EXISTS (SELECT 1 FROM referral_payouts p WHERE p.correlation_token = d.correlation_token)
		 ORDER BY d.verified_at
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpaid referrals: %w", err)
	}
	defer rows.Close()

	var items []domain.DonationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) IsProcessed(ctx context.Context, txID string) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM processed_transactions WHERE tx_id = ?`, txID).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check processed transaction: %w", err)
	}
	return true, nil
}
