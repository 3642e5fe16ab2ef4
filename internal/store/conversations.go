package store

import (
	"context"
	"fmt"
	"time"

	"feedsync/internal/models"
)

// ConversationsByKey lists every conversation for one
// (customer, phone, platform) key, newest activity first.
func (s *Store) ConversationsByKey(ctx context.Context, customerID, phone, platform string) ([]models.Conversation, error) {
	query := s.db.Rebind(`SELECT * FROM conversations
		WHERE customer_id = ? AND phone_number = ? AND platform = ?
		ORDER BY last_message_at DESC`)
	var convs []models.Conversation
	if err := s.db.SelectContext(ctx, &convs, query, customerID, phone, platform); err != nil {
		return nil, fmt.Errorf("conversations by key: %w", err)
	}
	return convs, nil
}

// CreateConversation inserts a new conversation row.
func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	query := s.db.Rebind(`INSERT INTO conversations
		(id, customer_id, phone_number, platform, status, priority, last_message_at, external_thread_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.CustomerID, c.PhoneNumber, c.Platform, c.Status, c.Priority,
		c.LastMessageAt, c.ExternalThreadID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation %s: %w", c.ID, err)
	}
	return nil
}

// UpdateConversationStatus moves a conversation through its lifecycle.
func (s *Store) UpdateConversationStatus(ctx context.Context, id string, status models.ConversationStatus) error {
	query := s.db.Rebind(`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update conversation %s status: %w", id, err)
	}
	return nil
}

// TouchConversation bumps last_message_at.
func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	query := s.db.Rebind(`UPDATE conversations SET last_message_at = ?, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, at, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("touch conversation %s: %w", id, err)
	}
	return nil
}

// ReassignConversation re-points every message from one conversation to
// another; used when duplicate threads merge.
func (s *Store) ReassignConversation(ctx context.Context, fromID, toID string) error {
	query := s.db.Rebind(`UPDATE messages SET conversation_id = ? WHERE conversation_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, toID, fromID); err != nil {
		return fmt.Errorf("reassign messages %s -> %s: %w", fromID, toID, err)
	}
	return nil
}
