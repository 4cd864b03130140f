package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"treasury/internal/domain"
	"treasury/internal/infra"
	"treasury/internal/sqlinline"
)

// CreateRequest inserts a PENDING request. A reused token yields ErrDuplicateToken.
func (s *Store) CreateRequest(ctx context.Context, req *domain.DonationRequest) error {
	_, err := s.sql.Exec(ctx, sqlinline.QInsertDonationRequest,
		req.CorrelationToken,
		req.RequesterID,
		req.MinimumAmount.String(),
		req.ReferralAttribution,
		req.CreatedAt,
		req.ExpiresAt,
	)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return domain.ErrDuplicateToken
		}
		return fmt.Errorf("insert donation request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, token string) (*domain.DonationRequest, error) {
	req, err := scanRequest(s.sql.QueryRow(ctx, sqlinline.QGetDonationRequest, token))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get donation request: %w", err)
	}
	return req, nil
}

func (s *Store) ExpireRequest(ctx context.Context, token string, now time.Time) (bool, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QExpireDonationRequest, token, now)
	if err != nil {
		return false, fmt.Errorf("expire donation request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireOverdue expires up to limit overdue PENDING requests and returns them.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time, limit int) ([]domain.DonationRequest, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QExpireOverdueRequests, now, limit)
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

// ApplyPayment locks the request row, records the processed transaction and
// moves the request forward, all in one transaction.
func (s *Store) ApplyPayment(ctx context.Context, p domain.PaymentApplication) (*domain.DonationRequest, error) {
	var result *domain.DonationRequest
	err := s.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		current, err := scanRequest(tx.QueryRow(ctx, sqlinline.QLockDonationRequest, p.CorrelationToken))
		if err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("lock donation request: %w", err)
		}

		tag, err := tx.Exec(ctx, sqlinline.QInsertProcessedTransaction,
			p.Tx.ID,
			p.CorrelationToken,
			p.Tx.Amount.String(),
			p.Tx.Ledger,
			p.Tx.Index,
			p.Now,
		)
		if err != nil {
			return fmt.Errorf("insert processed transaction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrDuplicateTransaction
		}

		next, err := current.WithPayment(p)
		if err != nil {
			return err
		}

		if next.Status == domain.RequestStatusVerified {
			tag, err = tx.Exec(ctx, sqlinline.QMarkRequestVerified,
				next.CorrelationToken, next.ReceivedAmount.String(), next.CreditedTxID, p.Now)
		} else {
			tag, err = tx.Exec(ctx, sqlinline.QAccumulateReceived,
				next.CorrelationToken, next.ReceivedAmount.String())
		}
		if err != nil {
			return fmt.Errorf("update donation request: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return domain.ErrRequestNotPending
		}
		result = &next
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("apply payment: %w", err)
	}
	return result, nil
}

func (s *Store) ListUnpaidReferrals(ctx context.Context, limit int) ([]domain.DonationRequest, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListUnpaidReferrals, limit)
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
	var exists bool
	if err := s.sql.QueryRow(ctx, sqlinline.QIsTransactionProcessed, txID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check processed transaction: %w", err)
	}
	return exists, nil
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrDuplicateTransaction,
		domain.ErrRequestNotPending,
		domain.ErrExpiredRequest,
		domain.ErrInsufficientAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
