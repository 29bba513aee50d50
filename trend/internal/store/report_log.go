package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertReportLog records one generated report.
func (s *Store) InsertReportLog(ctx context.Context, e *ReportLogEntry) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO report_log (id, day, mode, total_titles, new_count, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Day, e.Mode, e.TotalTitles, e.NewCount, e.GeneratedAt,
	)
	return err
}

// LastReport returns the most recently generated report entry, or nil.
func (s *Store) LastReport(ctx context.Context) (*ReportLogEntry, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, day, mode, total_titles, new_count, generated_at
		FROM report_log ORDER BY generated_at DESC LIMIT 1`)
	var e ReportLogEntry
	err := row.Scan(&e.ID, &e.Day, &e.Mode, &e.TotalTitles, &e.NewCount, &e.GeneratedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan report log: %w", err)
	}
	return &e, nil
}
