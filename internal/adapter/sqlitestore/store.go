// Package sqlitestore provides a SQLite-backed State Store for single-node
// deployments and tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"treasury/internal/domain"
	"treasury/internal/migrations"
)

// Store persists donation state in SQLite. A single connection makes every
// transaction a single writer.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrations.ApplySQLite(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() {
	if s == nil || s.sqlDB == nil {
		return
	}
	_ = s.sqlDB.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

type scanner interface {
	Scan(dest ...any) error
}

const requestColumns = `correlation_token, requester_id, minimum_amount, referral_attribution, status,
	received_amount, credited_tx_id, created_at, expires_at, verified_at`

func scanRequest(row scanner) (*domain.DonationRequest, error) {
	var (
		req                  domain.DonationRequest
		minimum, received    string
		status               string
		createdAt, expiresAt int64
		verifiedAt           sql.NullInt64
	)
	if err := row.Scan(
		&req.CorrelationToken,
		&req.RequesterID,
		&minimum,
		&req.ReferralAttribution,
		&status,
		&received,
		&req.CreditedTxID,
		&createdAt,
		&expiresAt,
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
	req.CreatedAt = fromMillis(createdAt)
	req.ExpiresAt = fromMillis(expiresAt)
	if verifiedAt.Valid {
		v := fromMillis(verifiedAt.Int64)
		req.VerifiedAt = &v
	}
	return &req, nil
}

const payoutColumns = `id, correlation_token, payee, payee_address, amount, status, attempts,
	ledger_tx_id, last_error, created_at, updated_at`

func scanPayout(row scanner) (*domain.ReferralPayout, error) {
	var (
		p                    domain.ReferralPayout
		amount, status       string
		createdAt, updatedAt int64
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
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse payout amount: %w", err)
	}
	p.Status = domain.PayoutStatus(status)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

var _ domain.Store = (*Store)(nil)
