package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/sync"
)

// MessageIDByExternalID returns the internal message id already mapped to a
// provider id, or "" when no mapping exists.
func (s *Store) MessageIDByExternalID(ctx context.Context, externalID, accountID string) (string, error) {
	query := s.db.Rebind(`SELECT message_id FROM external_id_mappings
		WHERE external_message_id = ? AND source_account_id = ?`)
	var messageID string
	err := s.db.GetContext(ctx, &messageID, query, externalID, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("external id lookup: %w", err)
	}
	return messageID, nil
}

// FindMessageByContent returns the oldest message with identical
// phone/content/direction inside [from, to], joining through conversations
// for the phone number. Used by the content-based duplicate check.
func (s *Store) FindMessageByContent(ctx context.Context, phone, content string, direction models.Direction, from, to time.Time) (*models.Message, error) {
	query := s.db.Rebind(`SELECT m.id, m.conversation_id, m.direction, m.content, m.sent_at, m.emergency, m.created_at
		FROM messages m
		JOIN conversations c ON m.conversation_id = c.id
		WHERE c.phone_number = ? AND m.content = ? AND m.direction = ?
			AND m.sent_at >= ? AND m.sent_at <= ?
		ORDER BY m.sent_at ASC LIMIT 1`)
	var m models.Message
	err := s.db.GetContext(ctx, &m, query, phone, content, direction, from, to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("content duplicate lookup: %w", err)
	}
	return &m, nil
}

// ImportMessage persists the message row, its external id mapping and the
// phone mapping upsert in one transaction, so a crash mid-import can never
// leave a mapping without its message. A unique-key conflict on the mapping
// surfaces as sync.ErrDuplicateMapping.
func (s *Store) ImportMessage(ctx context.Context, msg *models.Message, mapping *models.ExternalIDMapping, contact sync.PhoneContact) error {
	attachments := ""
	if len(msg.Attachments) > 0 {
		encoded, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("encode attachments for %s: %w", msg.ID, err)
		}
		attachments = string(encoded)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import transaction: %w", err)
	}
	defer tx.Rollback()

	insertMsg := tx.Rebind(`INSERT INTO messages
		(id, conversation_id, direction, content, sent_at, emergency, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insertMsg,
		msg.ID, msg.ConversationID, msg.Direction, msg.Content, msg.SentAt,
		msg.Emergency, attachments, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}

	insertMapping := tx.Rebind(`INSERT INTO external_id_mappings
		(external_message_id, source_account_id, message_id, created_at)
		VALUES (?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insertMapping,
		mapping.ExternalMessageID, mapping.SourceAccountID, mapping.MessageID, mapping.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s on account %s",
				sync.ErrDuplicateMapping, mapping.ExternalMessageID, mapping.SourceAccountID)
		}
		return fmt.Errorf("insert external id mapping %s: %w", mapping.ExternalMessageID, err)
	}

	upsertPhone := tx.Rebind(`INSERT INTO phone_mappings
		(source_account_id, phone_number, customer_id, first_contact_at, last_contact_at, message_count)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (source_account_id, phone_number) DO UPDATE SET
			message_count = phone_mappings.message_count + 1,
			last_contact_at = excluded.last_contact_at`)
	if _, err := tx.ExecContext(ctx, upsertPhone,
		contact.SourceAccountID, contact.PhoneNumber, contact.CustomerID, contact.At, contact.At); err != nil {
		return fmt.Errorf("upsert phone mapping %s: %w", contact.PhoneNumber, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import transaction: %w", err)
	}
	return nil
}

// PhoneMappingByNumber returns the mapping row for one account/phone pair,
// or (nil, nil) when the number was never seen.
func (s *Store) PhoneMappingByNumber(ctx context.Context, accountID, phone string) (*models.PhoneMapping, error) {
	query := s.db.Rebind(`SELECT * FROM phone_mappings
		WHERE source_account_id = ? AND phone_number = ?`)
	var pm models.PhoneMapping
	err := s.db.GetContext(ctx, &pm, query, accountID, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("phone mapping lookup: %w", err)
	}
	return &pm, nil
}
