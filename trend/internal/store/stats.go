package store

import "context"

// GlobalStats returns aggregate counters for the whole database.
func (s *Store) GlobalStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&stats.Sources)
	if err != nil {
		return nil, err
	}
	err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&stats.Observations)
	if err != nil {
		return nil, err
	}
	err = s.DB.QueryRowContext(ctx, `SELECT COUNT(DISTINCT day) FROM observations`).Scan(&stats.Days)
	if err != nil {
		return nil, err
	}
	err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM report_log`).Scan(&stats.Reports)
	if err != nil {
		return nil, err
	}
	err = s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(day), '') FROM observations`).Scan(&stats.LatestDay)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
