package database

import (
	"database/sql"
	"fmt"
	"log"
)

// schema is applied at start-up. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		username         TEXT NOT NULL UNIQUE,
		role             TEXT NOT NULL CHECK (role IN ('admin', 'librarian', 'teacher', 'student')),
		department       TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'deactive')),
		password         TEXT NOT NULL,
		password_changed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		author     TEXT NOT NULL DEFAULT '',
		category   TEXT NOT NULL DEFAULT '',
		copies     INTEGER NOT NULL DEFAULT 0 CHECK (copies >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS borrows (
		id               UUID PRIMARY KEY,
		user_id          TEXT NOT NULL,
		username         TEXT NOT NULL,
		book_id          TEXT NOT NULL,
		book_name        TEXT NOT NULL,
		book_title       TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		requested_at     TIMESTAMPTZ,
		borrowed_at      TIMESTAMPTZ,
		due_date         TIMESTAMPTZ NOT NULL,
		returned_at      TIMESTAMPTZ,
		fine             BIGINT NOT NULL DEFAULT 0,
		approved_by      TEXT,
		approved_at      TIMESTAMPTZ,
		rejection_reason TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS borrows_one_active_per_user
		ON borrows (user_id)
		WHERE returned_at IS NULL AND status IN ('pending', 'approved', 'borrowed')`,
	`CREATE INDEX IF NOT EXISTS borrows_user_book_status ON borrows (user_id, book_id, status)`,
	`CREATE TABLE IF NOT EXISTS payments (
		tx_ref     TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		username   TEXT NOT NULL,
		amount     BIGINT NOT NULL CHECK (amount > 0),
		borrow_id  TEXT NOT NULL,
		method     TEXT NOT NULL CHECK (method IN ('chapa', 'telebirr')),
		mobile     TEXT,
		status     TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS news (
		id         TEXT PRIMARY KEY,
		roles      TEXT[] NOT NULL,
		news       TEXT NOT NULL,
		read_by    TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables and indexes the services rely on.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	log.Printf("[DATABASE] Schema up to date (%d statements)", len(schema))
	return nil
}
