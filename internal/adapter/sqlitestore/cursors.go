package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *Store) LoadCursor(ctx context.Context, name string) (int64, bool, error) {
	var cursor int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT ledger_index FROM ledger_cursors WHERE name = ?`, name).Scan(&cursor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("load ledger cursor: %w", err)
	}
	return cursor, true, nil
}

func (s *Store) SaveCursor(ctx context.Context, name string, cursor int64) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO ledger_cursors (name, ledger_index, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET ledger_index = excluded.ledger_index, updated_at = excluded.updated_at`,
		name, cursor, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("save ledger cursor: %w", err)
	}
	return nil
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}
