package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hazyhaar/trendradar/dbopen"
)

// InsertObservations stores one poll's rows for a day in a single
// transaction, assigning each a poll_seq that continues the day's
// counter so replaying the day preserves poll order. All rows share
// the given pollID.
func (s *Store) InsertObservations(ctx context.Context, day, pollID string, obs []*Observation) error {
	if len(obs) == 0 {
		return nil
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var next int64
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(poll_seq), 0) + 1 FROM observations WHERE day = ?`, day).Scan(&next)
		if err != nil {
			return fmt.Errorf("next poll_seq: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO observations (id, day, poll_id, source_id, title, rank, url, mobile_url, observed_at, poll_seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, o := range obs {
			o.Day = day
			o.PollID = pollID
			o.PollSeq = next
			next++
			_, err := stmt.ExecContext(ctx,
				o.ID, o.Day, o.PollID, o.SourceID, o.Title, o.Rank, o.URL, o.MobileURL, o.ObservedAt, o.PollSeq)
			if err != nil {
				return fmt.Errorf("insert observation: %w", err)
			}
		}
		return nil
	})
}

// ListObservations returns all of a day's rows in poll order.
func (s *Store) ListObservations(ctx context.Context, day string) ([]*Observation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+obsColumns+` FROM observations WHERE day = ? ORDER BY poll_seq`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// LatestSlice returns only the rows of the day's most recent poll batch.
func (s *Store) LatestSlice(ctx context.Context, day string) ([]*Observation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+obsColumns+` FROM observations
		WHERE day = ? AND poll_id = (
			SELECT poll_id FROM observations WHERE day = ? ORDER BY poll_seq DESC LIMIT 1
		)
		ORDER BY poll_seq`, day, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// CurrentSlice returns, per source, the rows of that source's most recent
// poll batch on the given day.
func (s *Store) CurrentSlice(ctx context.Context, day string) ([]*Observation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+obsColumns+` FROM observations o
		WHERE o.day = ? AND o.poll_id = (
			SELECT i.poll_id FROM observations i
			WHERE i.day = o.day AND i.source_id = o.source_id
			ORDER BY i.poll_seq DESC LIMIT 1
		)
		ORDER BY o.poll_seq`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// ObservationsInRange returns rows for an inclusive day range, optionally
// restricted to the given source ids, in (day, poll_seq) order. A limit
// of 0 means no limit.
func (s *Store) ObservationsInRange(ctx context.Context, fromDay, toDay string, sourceIDs []string, limit int) ([]*Observation, error) {
	query := `SELECT ` + obsColumns + ` FROM observations WHERE day >= ? AND day <= ?`
	args := []any{fromDay, toDay}
	if len(sourceIDs) > 0 {
		query += ` AND source_id IN (?` + strings.Repeat(",?", len(sourceIDs)-1) + `)`
		for _, id := range sourceIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY day, poll_seq`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// LatestDay returns the most recent day that has observations,
// or "" when the database is empty.
func (s *Store) LatestDay(ctx context.Context) (string, error) {
	var day string
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(day), '') FROM observations`).Scan(&day)
	return day, err
}

// PruneBefore removes observation, baseline, failure, and report rows
// older than the given day. Returns the number of observations dropped.
func (s *Store) PruneBefore(ctx context.Context, day string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM observations WHERE day < ?`, day)
	if err != nil {
		return 0, err
	}
	dropped, _ := res.RowsAffected()
	for _, q := range []string{
		`DELETE FROM baseline WHERE day < ?`,
		`DELETE FROM baseline_meta WHERE day < ?`,
		`DELETE FROM fetch_failures WHERE day < ?`,
		`DELETE FROM report_log WHERE day < ?`,
	} {
		if _, err := s.DB.ExecContext(ctx, q, day); err != nil {
			return dropped, err
		}
	}
	return dropped, nil
}

const obsColumns = `id, day, poll_id, source_id, title, rank, url, mobile_url, observed_at, poll_seq`

func scanObservations(rows *sql.Rows) ([]*Observation, error) {
	var obs []*Observation
	for rows.Next() {
		var o Observation
		err := rows.Scan(&o.ID, &o.Day, &o.PollID, &o.SourceID, &o.Title, &o.Rank,
			&o.URL, &o.MobileURL, &o.ObservedAt, &o.PollSeq)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs = append(obs, &o)
	}
	return obs, rows.Err()
}
