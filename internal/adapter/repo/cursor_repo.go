package repo

import (
	"context"
	"fmt"

	"treasury/internal/infra"
	"treasury/internal/sqlinline"
)

// LoadCursor returns the stored ledger position for name; ok is false when
// nothing has been saved yet.
func (s *Store) LoadCursor(ctx context.Context, name string) (int64, bool, error) {
	var cursor int64
	if err := s.sql.QueryRow(ctx, sqlinline.QGetLedgerCursor, name).Scan(&cursor); err != nil {
		if infra.IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("load ledger cursor: %w", err)
	}
	return cursor, true, nil
}

func (s *Store) SaveCursor(ctx context.Context, name string, cursor int64) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertLedgerCursor, name, cursor); err != nil {
		return fmt.Errorf("save ledger cursor: %w", err)
	}
	return nil
}

// Ping checks that the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.sql.QueryRow(ctx, sqlinline.QPing).Scan(&one); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}
