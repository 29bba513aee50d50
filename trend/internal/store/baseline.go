package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/trendradar/dbopen"
)

// LoadBaseline returns the day's baseline keys and whether a baseline
// exists at all. An existing-but-empty baseline returns (empty, true);
// a day never persisted returns (empty, false). Callers depend on that
// distinction: only an existing baseline may declare titles "new".
func (s *Store) LoadBaseline(ctx context.Context, day string) ([]KeyPair, bool, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM baseline_meta WHERE day = ?`, day).Scan(&exists)
	if err != nil {
		return nil, false, err
	}
	if exists == 0 {
		return nil, false, nil
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT source_id, title FROM baseline WHERE day = ?`, day)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	keys := []KeyPair{}
	for rows.Next() {
		var k KeyPair
		if err := rows.Scan(&k.SourceID, &k.Title); err != nil {
			return nil, false, fmt.Errorf("scan baseline: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, true, rows.Err()
}

// ExtendBaseline adds keys to the day's baseline and marks the baseline
// as existing. Already-present keys are ignored, so re-persisting the
// same snapshot is harmless.
func (s *Store) ExtendBaseline(ctx context.Context, day string, keys []KeyPair) error {
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO baseline_meta (day, created_at, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(day) DO UPDATE SET updated_at=excluded.updated_at`,
			day, now, now)
		if err != nil {
			return fmt.Errorf("baseline meta: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO baseline (day, source_id, title, added_at)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, day, k.SourceID, k.Title, now); err != nil {
				return fmt.Errorf("extend baseline: %w", err)
			}
		}
		return nil
	})
}

// BaselineSize returns the number of keys in the day's baseline.
func (s *Store) BaselineSize(ctx context.Context, day string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM baseline WHERE day = ?`, day).Scan(&n)
	return n, err
}
