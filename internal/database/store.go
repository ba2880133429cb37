// Package database owns the Postgres connection, builds the per-kind
// catalog source buffers the dispatcher hands to clients, and runs the
// drawing/search/backup queries the request handlers need.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps a *sql.DB with reconnect-on-stale-handle behaviour: a dead
// connection is silently reopened rather than propagated as an error to
// whichever handler asked for it.
type Store struct {
	dsn string
	db  *sql.DB
}

// Open connects to Postgres at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return &Store{dsn: dsn, db: db}, nil
}

// Conn returns a live *sql.DB, reopening the connection first if the
// current one has gone stale (network blip, Postgres restart, idle
// connection reaper) the way databaseManager() reconnects before handing
// back its driver handle.
func (s *Store) Conn(ctx context.Context) (*sql.DB, error) {
	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return s.db, nil
		}
		s.db.Close()
	}

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("database: reconnect: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: reconnect ping: %w", err)
	}
	s.db = db
	return s.db, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
