package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const dropSchemaSQL = `
DROP TABLE IF EXISTS extracted_value;
DROP TABLE IF EXISTS extraction_run;
DROP TABLE IF EXISTS datamap_line;
DROP TABLE IF EXISTS datamap;
`

const createSchemaSQL = `
CREATE TABLE datamap (
	id         INTEGER PRIMARY KEY,
	name       TEXT     NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE datamap_line (
	id      INTEGER PRIMARY KEY,
	dm_id   INTEGER NOT NULL REFERENCES datamap(id) ON DELETE CASCADE,
	key     TEXT    NOT NULL,
	sheet   TEXT    NOT NULL,
	cellref TEXT    NOT NULL,
	line    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_datamap_line_dm ON datamap_line(dm_id);

CREATE TABLE extraction_run (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT     NOT NULL UNIQUE,
	dm_id      INTEGER  NOT NULL,
	source     TEXT     NOT NULL DEFAULT '',
	checksum   TEXT     NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_extraction_run_dm ON extraction_run(dm_id);

CREATE TABLE extracted_value (
	id       INTEGER PRIMARY KEY,
	run_id   TEXT    NOT NULL REFERENCES extraction_run(id) ON DELETE CASCADE,
	dm_id    INTEGER NOT NULL,
	key      TEXT    NOT NULL,
	sheet    TEXT    NOT NULL,
	cellref  TEXT    NOT NULL,
	value    TEXT    NOT NULL DEFAULT '',
	position INTEGER NOT NULL
);

CREATE INDEX idx_extracted_value_run ON extracted_value(run_id);
CREATE INDEX idx_extracted_value_dm ON extracted_value(dm_id);
`

// ResetSchema drops and recreates every table in its own transaction.
// All datamaps and extraction results are lost.
func (s *Store) ResetSchema(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.ResetSchema(ctx)
	})
}

// ResetSchema drops and recreates every table inside the transaction.
func (t *Tx) ResetSchema(ctx context.Context) error {
	return resetSchema(ctx, t.tx)
}

func resetSchema(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, dropSchemaSQL); err != nil {
		return wrap("drop schema", err)
	}
	if _, err := tx.ExecContext(ctx, createSchemaSQL); err != nil {
		return wrap("create schema", err)
	}
	return nil
}
