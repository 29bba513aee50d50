package store

import (
	"context"
	"fmt"
	"time"
)

// UpsertSource inserts a source or refreshes its display name.
func (s *Store) UpsertSource(ctx context.Context, id, name string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sources (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, updated_at=excluded.updated_at`,
		id, name, now, now,
	)
	return err
}

// ListSources returns all known sources ordered by id.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Name, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, &src)
	}
	return sources, rows.Err()
}

// IDToName returns the id -> display name lookup for report assembly.
func (s *Store) IDToName(ctx context.Context) (map[string]string, error) {
	sources, err := s.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(sources))
	for _, src := range sources {
		m[src.ID] = src.Name
	}
	return m, nil
}

// RecordFailure marks a source as failed for the given day. Repeated
// failures on the same day collapse into one row.
func (s *Store) RecordFailure(ctx context.Context, day, sourceID string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO fetch_failures (day, source_id, recorded_at)
		VALUES (?, ?, ?)`,
		day, sourceID, time.Now().UnixMilli(),
	)
	return err
}

// ListFailures returns the source ids that failed on the given day,
// in the order the failures were first recorded.
func (s *Store) ListFailures(ctx context.Context, day string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT source_id FROM fetch_failures WHERE day = ? ORDER BY recorded_at`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
