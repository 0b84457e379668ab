// Package store persists datamaps, their lines and extraction results in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/datamaps/internal/apperr"
)

// Store wraps a sqlx.DB with datamap-specific operations.
type Store struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at dsn. It does not create tables;
// call ResetSchema before first use.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, wrap("open db", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrap("ping", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is an open store transaction handed to WithTx callbacks.
type Tx struct {
	tx *sqlx.Tx
}

// WithTx runs fn inside one transaction. Any error from fn rolls back every
// write made through the Tx.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit", err)
	}
	return nil
}

// wrap classifies a driver error. Missing tables become ErrSchemaMissing,
// everything else ErrStoreUnavailable with the driver message kept.
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("store: %s: %w", op, apperr.ErrNotFound)
	case strings.Contains(err.Error(), "no such table"):
		return fmt.Errorf("store: %s: %w (%v)", op, apperr.ErrSchemaMissing, err)
	default:
		return fmt.Errorf("store: %s: %w: %w", op, apperr.ErrStoreUnavailable, err)
	}
}
