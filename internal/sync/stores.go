package sync

import (
	"context"
	"errors"
	"time"

	"feedsync/internal/models"
)

var (
	// ErrSyncAlreadyRunning is returned by StartSync when the account
	// already has a running session.
	ErrSyncAlreadyRunning = errors.New("sync already running for account")

	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("sync session not found")

	// ErrMalformedMessage marks an external message missing its phone
	// number, body or provider id. Malformed messages are skipped and
	// counted separately from processing errors.
	ErrMalformedMessage = errors.New("malformed external message")

	// ErrDuplicateMapping is surfaced by the store when an external id
	// mapping insert hits the unique key. Reaching the importer with a
	// duplicate id is a dedup-logic bug, so this is never retried.
	ErrDuplicateMapping = errors.New("external id mapping already exists")
)

// CustomerStore is the persistence surface the identity resolver needs.
// Lookup methods return (nil, nil) when nothing matches.
type CustomerStore interface {
	CustomerByPrimaryPhone(ctx context.Context, phone string) (*models.Customer, error)
	CustomerByAltPhone(ctx context.Context, phone string) (*models.Customer, error)
	SearchCustomers(ctx context.Context, name, email string) ([]models.Customer, error)
	CreateCustomer(ctx context.Context, c *models.Customer) error
}

// ConversationStore is the persistence surface the conversation resolver needs.
type ConversationStore interface {
	ConversationsByKey(ctx context.Context, customerID, phone, platform string) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, c *models.Conversation) error
	UpdateConversationStatus(ctx context.Context, id string, status models.ConversationStatus) error
	TouchConversation(ctx context.Context, id string, at time.Time) error
	// ReassignConversation re-points every message (and any dependent
	// response records) from one conversation to another. Used by merge.
	ReassignConversation(ctx context.Context, fromID, toID string) error
}

// PhoneContact carries the phone-mapping upsert performed on every import.
type PhoneContact struct {
	SourceAccountID string
	PhoneNumber     string
	CustomerID      string
	At              time.Time
}

// MessageStore is the persistence surface for dedup lookups and imports.
type MessageStore interface {
	// MessageIDByExternalID returns the internal message id mapped to the
	// provider id, or "" when none exists.
	MessageIDByExternalID(ctx context.Context, externalID, accountID string) (string, error)
	// FindMessageByContent returns the first message with identical
	// phone/content/direction whose sent_at falls inside [from, to].
	FindMessageByContent(ctx context.Context, phone, content string, direction models.Direction, from, to time.Time) (*models.Message, error)
	// ImportMessage persists the message, its external id mapping and the
	// phone mapping upsert as one transaction. A unique-key conflict on
	// the mapping returns ErrDuplicateMapping.
	ImportMessage(ctx context.Context, msg *models.Message, mapping *models.ExternalIDMapping, contact PhoneContact) error
}

// SessionStore persists sync session snapshots. Persisted rows are the
// source of truth for incremental resume; the orchestrator's in-memory map
// only serves live polling.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.SyncSession) error
	UpdateSession(ctx context.Context, s *models.SyncSession) error
	SessionByID(ctx context.Context, id string) (*models.SyncSession, error)
	// LatestCompletedSession returns the most recent completed session for
	// the account, or (nil, nil) when the account never completed one.
	LatestCompletedSession(ctx context.Context, accountID string) (*models.SyncSession, error)
}

// PageRequest selects one page of the provider feed.
type PageRequest struct {
	Cursor    string
	StartTime time.Time
	EndTime   time.Time
	PageSize  int
}

// Page is one page of the provider feed. An empty NextCursor means the feed
// is exhausted.
type Page struct {
	Messages   []models.ExternalMessage
	NextCursor string
}

// MessageSource fetches pages from the provider. Implementations own the
// transient-failure retry policy; an error returned here is treated as fatal
// for the session. FetchPage must be idempotent under retry.
type MessageSource interface {
	FetchPage(ctx context.Context, accountID string, req PageRequest) (*Page, error)
}
