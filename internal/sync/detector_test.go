package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/internal/models"
)

func seedMessage(store *memStore, phone, content string, direction models.Direction, sentAt time.Time) string {
	conv := &models.Conversation{
		ID:          "conv-" + phone,
		CustomerID:  "cust-1",
		PhoneNumber: phone,
		Platform:    "sms",
		Status:      models.ConversationActive,
	}
	_ = store.CreateConversation(context.Background(), conv)
	msg := &models.Message{
		ID:             "msg-" + content,
		ConversationID: conv.ID,
		Direction:      direction,
		Content:        content,
		SentAt:         sentAt,
	}
	mapping := &models.ExternalIDMapping{
		ExternalMessageID: "ext-" + content,
		MessageID:         msg.ID,
		SourceAccountID:   "acct-1",
	}
	_ = store.ImportMessage(context.Background(), msg, mapping, PhoneContact{
		SourceAccountID: "acct-1",
		PhoneNumber:     phone,
		CustomerID:      "cust-1",
		At:              sentAt,
	})
	return msg.ID
}

func TestIsDuplicateByExternalID(t *testing.T) {
	store := newMemStore()
	sentAt := time.Now().UTC()
	msgID := seedMessage(store, "+15551234567", "hello there", models.DirectionInbound, sentAt)

	d := NewDuplicateDetector(store, 0)
	res := d.IsDuplicate(context.Background(), &models.ExternalMessage{
		ExternalID: "ext-hello there",
		Body:       "completely different body",
		Direction:  models.DirectionInbound,
		SentAt:     sentAt,
	}, "+15551234567", "acct-1")

	require.True(t, res.Duplicate)
	assert.Equal(t, msgID, res.MatchedMessageID)
	assert.InDelta(t, 1.0, res.Confidence, 0.001)
}

func TestIsDuplicateByContentInsideWindow(t *testing.T) {
	store := newMemStore()
	sentAt := time.Now().UTC()
	msgID := seedMessage(store, "+15551234567", "my sink is leaking", models.DirectionInbound, sentAt)

	d := NewDuplicateDetector(store, 24*time.Hour)

	// Same phone, body and direction two hours later under a new provider id.
	res := d.IsDuplicate(context.Background(), &models.ExternalMessage{
		ExternalID: "ext-redelivered",
		Body:       "my sink is leaking",
		Direction:  models.DirectionInbound,
		SentAt:     sentAt.Add(2 * time.Hour),
	}, "+15551234567", "acct-1")
	require.True(t, res.Duplicate)
	assert.Equal(t, msgID, res.MatchedMessageID)
	assert.InDelta(t, 0.9, res.Confidence, 0.001)

	// Thirty hours later is outside the window, so it is a new message.
	res = d.IsDuplicate(context.Background(), &models.ExternalMessage{
		ExternalID: "ext-much-later",
		Body:       "my sink is leaking",
		Direction:  models.DirectionInbound,
		SentAt:     sentAt.Add(30 * time.Hour),
	}, "+15551234567", "acct-1")
	assert.False(t, res.Duplicate)
}

func TestIsDuplicateIgnoresDirectionAndPhoneMismatch(t *testing.T) {
	store := newMemStore()
	sentAt := time.Now().UTC()
	seedMessage(store, "+15551234567", "thanks!", models.DirectionInbound, sentAt)

	d := NewDuplicateDetector(store, 24*time.Hour)

	res := d.IsDuplicate(context.Background(), &models.ExternalMessage{
		ExternalID: "ext-out",
		Body:       "thanks!",
		Direction:  models.DirectionOutbound,
		SentAt:     sentAt,
	}, "+15551234567", "acct-1")
	assert.False(t, res.Duplicate, "direction mismatch is not a duplicate")

	res = d.IsDuplicate(context.Background(), &models.ExternalMessage{
		ExternalID: "ext-other-phone",
		Body:       "thanks!",
		Direction:  models.DirectionInbound,
		SentAt:     sentAt,
	}, "+15559990000", "acct-1")
	assert.False(t, res.Duplicate, "other phone is not a duplicate")
}

func TestIsDuplicateFailsOpenOnLookupError(t *testing.T) {
	store := newMemStore()
	store.lookupErr = errors.New("connection reset")

	d := NewDuplicateDetector(store, 0)
	res := d.IsDuplicate(context.Background(), &models.ExternalMessage{
		ExternalID: "ext-1",
		Body:       "hello",
		Direction:  models.DirectionInbound,
		SentAt:     time.Now().UTC(),
	}, "+15551234567", "acct-1")

	assert.False(t, res.Duplicate)
	assert.Empty(t, res.MatchedMessageID)
}
