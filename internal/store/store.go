// Package store is the sqlx persistence layer behind the sync engine. It
// speaks both sqlite (modernc, pure Go) and postgres (lib/pq); the schema
// below sticks to the SQL subset both accept.
package store

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store wraps the database handle shared by all repositories. It is
// constructed once and injected into every component; there is no package
// level connection.
type Store struct {
	db *sqlx.DB
}

// Open connects using the given driver ("sqlite" or "postgres") and DSN and
// bootstraps the schema.
func Open(driver, dsn string) (*Store, error) {
	if driver != "sqlite" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// Single writer; avoids SQLITE_BUSY under the sync loop.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", driver).Msg("Database connection established")
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id            TEXT PRIMARY KEY,
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		email         TEXT NOT NULL DEFAULT '',
		primary_phone TEXT NOT NULL,
		alt_phone     TEXT NOT NULL DEFAULT '',
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_customers_primary_phone ON customers (primary_phone)`,
	`CREATE INDEX IF NOT EXISTS idx_customers_alt_phone ON customers (alt_phone)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id                 TEXT PRIMARY KEY,
		customer_id        TEXT NOT NULL REFERENCES customers (id),
		phone_number       TEXT NOT NULL,
		platform           TEXT NOT NULL,
		status             TEXT NOT NULL,
		priority           TEXT NOT NULL,
		last_message_at    TIMESTAMP NOT NULL,
		external_thread_id TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMP NOT NULL,
		updated_at         TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_key ON conversations (customer_id, phone_number, platform)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations (id),
		direction       TEXT NOT NULL,
		content         TEXT NOT NULL,
		sent_at         TIMESTAMP NOT NULL,
		emergency       BOOLEAN NOT NULL DEFAULT FALSE,
		attachments     TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_sent_at ON messages (sent_at)`,
	`CREATE TABLE IF NOT EXISTS external_id_mappings (
		external_message_id TEXT NOT NULL,
		source_account_id   TEXT NOT NULL,
		message_id          TEXT NOT NULL REFERENCES messages (id),
		created_at          TIMESTAMP NOT NULL,
		PRIMARY KEY (external_message_id, source_account_id)
	)`,
	`CREATE TABLE IF NOT EXISTS phone_mappings (
		source_account_id TEXT NOT NULL,
		phone_number      TEXT NOT NULL,
		customer_id       TEXT NOT NULL REFERENCES customers (id),
		first_contact_at  TIMESTAMP NOT NULL,
		last_contact_at   TIMESTAMP NOT NULL,
		message_count     INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (source_account_id, phone_number)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_sessions (
		id                 TEXT PRIMARY KEY,
		source_account_id  TEXT NOT NULL,
		sync_type          TEXT NOT NULL,
		status             TEXT NOT NULL,
		messages_processed INTEGER NOT NULL DEFAULT 0,
		customers_created  INTEGER NOT NULL DEFAULT 0,
		customers_matched  INTEGER NOT NULL DEFAULT 0,
		duplicates_skipped INTEGER NOT NULL DEFAULT 0,
		malformed_skipped  INTEGER NOT NULL DEFAULT 0,
		errors_encountered INTEGER NOT NULL DEFAULT 0,
		last_cursor        TEXT NOT NULL DEFAULT '',
		last_message_date  TIMESTAMP,
		error_message      TEXT NOT NULL DEFAULT '',
		started_at         TIMESTAMP NOT NULL,
		completed_at       TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_sessions_account ON sync_sessions (source_account_id, status)`,
}

func (s *Store) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	log.Debug().Int("statements", len(schema)).Msg("Schema bootstrap completed")
	return nil
}

// isUniqueViolation recognizes unique-key conflicts from both drivers.
// lib/pq says "duplicate key value violates unique constraint", modernc
// sqlite "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
