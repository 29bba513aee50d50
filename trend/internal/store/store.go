// Package store is the data access layer for the trend engine: raw
// snapshot observations, the per-day new-title baseline, source metadata,
// and report history, all in one SQLite database.
//
// The store deals in primitive row types; conversion to the engine's
// in-memory shapes happens in the trend package.
package store

import "database/sql"

// Store wraps the trendradar database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
