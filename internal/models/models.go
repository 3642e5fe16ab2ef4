package models

import "time"

// Direction of a message relative to the business: inbound comes from the
// customer, outbound was sent to them.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ConversationStatus lifecycle: active -> resolved -> (archived).
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationResolved ConversationStatus = "resolved"
	ConversationArchived ConversationStatus = "archived"
)

// Priority assigned to a conversation when it is created.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

// SyncType selects how the orchestrator picks its starting cursor.
type SyncType string

const (
	SyncTypeInitial     SyncType = "initial"
	SyncTypeIncremental SyncType = "incremental"
	SyncTypeManual      SyncType = "manual"
)

// SessionStatus state machine: pending -> running -> completed/failed/cancelled.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the session can no longer change.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// Attachment is a media reference carried by an external message.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	FileName    string `json:"file_name,omitempty"`
}

// ExternalMessage is a message exactly as the provider hands it over, either
// from a fetched page or a normalized webhook event. It is transient: it is
// mapped into a Message and never stored in this shape.
type ExternalMessage struct {
	ExternalID  string       `json:"external_id"`
	ThreadID    string       `json:"thread_id,omitempty"`
	PhoneNumber string       `json:"phone_number"`
	Direction   Direction    `json:"direction"`
	Body        string       `json:"body"`
	SentAt      time.Time    `json:"sent_at"`
	Name        string       `json:"name,omitempty"`
	Email       string       `json:"email,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Customer is the identity a phone number resolves to.
type Customer struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email,omitempty"`
	PrimaryPhone string    `db:"primary_phone" json:"primary_phone"`
	AltPhone     string    `db:"alt_phone" json:"alt_phone,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins the name fields for fuzzy matching and display.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Conversation groups messages exchanged with one customer over one phone
// number on one platform. At most one conversation per
// (customer, phone, platform) key is active at any instant.
type Conversation struct {
	ID               string             `db:"id" json:"id"`
	CustomerID       string             `db:"customer_id" json:"customer_id"`
	PhoneNumber      string             `db:"phone_number" json:"phone_number"`
	Platform         string             `db:"platform" json:"platform"`
	Status           ConversationStatus `db:"status" json:"status"`
	Priority         Priority           `db:"priority" json:"priority"`
	LastMessageAt    time.Time          `db:"last_message_at" json:"last_message_at"`
	ExternalThreadID string             `db:"external_thread_id" json:"external_thread_id,omitempty"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

// Message is the imported form of an external message, owned by exactly one
// conversation.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Direction      Direction `db:"direction" json:"direction"`
	Content        string    `db:"content" json:"content"`
	SentAt         time.Time `db:"sent_at" json:"sent_at"`
	Emergency      bool      `db:"emergency" json:"emergency"`
	Attachments    []string  `db:"-" json:"attachments,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ExternalIDMapping records that a provider message id was already imported.
// The (external_message_id, source_account_id) pair is unique and is the
// primary dedup mechanism: re-running a sync or redelivering a webhook can
// never produce a second Message for the same provider id.
type ExternalIDMapping struct {
	ExternalMessageID string    `db:"external_message_id" json:"external_message_id"`
	SourceAccountID   string    `db:"source_account_id" json:"source_account_id"`
	MessageID         string    `db:"message_id" json:"message_id"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// PhoneMapping ties a normalized phone seen on one provider account to the
// customer it resolved to. Created on first contact, counters bumped on every
// subsequent import.
type PhoneMapping struct {
	SourceAccountID string    `db:"source_account_id" json:"source_account_id"`
	PhoneNumber     string    `db:"phone_number" json:"phone_number"`
	CustomerID      string    `db:"customer_id" json:"customer_id"`
	FirstContactAt  time.Time `db:"first_contact_at" json:"first_contact_at"`
	LastContactAt   time.Time `db:"last_contact_at" json:"last_contact_at"`
	MessageCount    int       `db:"message_count" json:"message_count"`
}

// SyncCounters are the progress counters of one sync session.
type SyncCounters struct {
	MessagesProcessed int `db:"messages_processed" json:"messages_processed"`
	CustomersCreated  int `db:"customers_created" json:"customers_created"`
	CustomersMatched  int `db:"customers_matched" json:"customers_matched"`
	DuplicatesSkipped int `db:"duplicates_skipped" json:"duplicates_skipped"`
	MalformedSkipped  int `db:"malformed_skipped" json:"malformed_skipped"`
	ErrorsEncountered int `db:"errors_encountered" json:"errors_encountered"`
}

// SyncSession is one run of the batch loop for one provider account. The
// persisted row is the source of truth for incremental resume; the in-memory
// progress snapshot exists only for live polling.
type SyncSession struct {
	ID              string        `db:"id" json:"id"`
	SourceAccountID string        `db:"source_account_id" json:"source_account_id"`
	SyncType        SyncType      `db:"sync_type" json:"sync_type"`
	Status          SessionStatus `db:"status" json:"status"`
	SyncCounters
	LastCursor      string     `db:"last_cursor" json:"last_cursor,omitempty"`
	LastMessageDate *time.Time `db:"last_message_date" json:"last_message_date,omitempty"`
	ErrorMessage    string     `db:"error_message" json:"error_message,omitempty"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
