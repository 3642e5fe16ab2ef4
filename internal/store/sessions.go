package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"feedsync/internal/models"
)

// CreateSession inserts the initial session row.
func (s *Store) CreateSession(ctx context.Context, session *models.SyncSession) error {
	query := `INSERT INTO sync_sessions
		(id, source_account_id, sync_type, status,
		 messages_processed, customers_created, customers_matched,
		 duplicates_skipped, malformed_skipped, errors_encountered,
		 last_cursor, last_message_date, error_message, started_at, completed_at)
		VALUES (:id, :source_account_id, :sync_type, :status,
		 :messages_processed, :customers_created, :customers_matched,
		 :duplicates_skipped, :malformed_skipped, :errors_encountered,
		 :last_cursor, :last_message_date, :error_message, :started_at, :completed_at)`
	if _, err := s.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("insert sync session %s: %w", session.ID, err)
	}
	return nil
}

// UpdateSession persists the current session snapshot; called after every
// page and once more on the terminal transition.
func (s *Store) UpdateSession(ctx context.Context, session *models.SyncSession) error {
	query := `UPDATE sync_sessions SET
		 status = :status,
		 messages_processed = :messages_processed,
		 customers_created = :customers_created,
		 customers_matched = :customers_matched,
		 duplicates_skipped = :duplicates_skipped,
		 malformed_skipped = :malformed_skipped,
		 errors_encountered = :errors_encountered,
		 last_cursor = :last_cursor,
		 last_message_date = :last_message_date,
		 error_message = :error_message,
		 completed_at = :completed_at
		WHERE id = :id`
	if _, err := s.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update sync session %s: %w", session.ID, err)
	}
	return nil
}

// SessionByID returns one session row, or (nil, nil) when unknown.
func (s *Store) SessionByID(ctx context.Context, id string) (*models.SyncSession, error) {
	query := s.db.Rebind(`SELECT * FROM sync_sessions WHERE id = ?`)
	var session models.SyncSession
	err := s.db.GetContext(ctx, &session, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup %s: %w", id, err)
	}
	return &session, nil
}

// LatestCompletedSession returns the most recent completed session for the
// account. Failed and cancelled sessions are skipped so they never poison
// future incremental starting points.
func (s *Store) LatestCompletedSession(ctx context.Context, accountID string) (*models.SyncSession, error) {
	query := s.db.Rebind(`SELECT * FROM sync_sessions
		WHERE source_account_id = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1`)
	var session models.SyncSession
	err := s.db.GetContext(ctx, &session, query, accountID, models.SessionCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed session for %s: %w", accountID, err)
	}
	return &session, nil
}

// RecentSessions lists the newest sessions for one account, for operator
// visibility.
func (s *Store) RecentSessions(ctx context.Context, accountID string, limit int) ([]models.SyncSession, error) {
	if limit <= 0 {
		limit = 20
	}
	query := s.db.Rebind(`SELECT * FROM sync_sessions
		WHERE source_account_id = ?
		ORDER BY started_at DESC LIMIT ?`)
	var sessions []models.SyncSession
	if err := s.db.SelectContext(ctx, &sessions, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("recent sessions for %s: %w", accountID, err)
	}
	return sessions, nil
}
