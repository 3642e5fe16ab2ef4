package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/internal/models"
)

func seedConversation(store *memStore, id string, status models.ConversationStatus, lastMessageAt, createdAt time.Time) *models.Conversation {
	c := &models.Conversation{
		ID:            id,
		CustomerID:    "cust-1",
		PhoneNumber:   "+15551234567",
		Platform:      "sms",
		Status:        status,
		Priority:      models.PriorityMedium,
		LastMessageAt: lastMessageAt,
		CreatedAt:     createdAt,
		UpdatedAt:     lastMessageAt,
	}
	_ = store.CreateConversation(context.Background(), c)
	return c
}

func newTestResolver(store *memStore, now time.Time) *ConversationResolver {
	r := NewConversationResolver(store, NewKeywordClassifier())
	r.now = func() time.Time { return now }
	return r
}

func TestResolveReusesActiveConversation(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	seedConversation(store, "conv-1", models.ConversationActive, now.Add(-time.Hour), now.Add(-48*time.Hour))

	r := newTestResolver(store, now)
	res, err := r.Resolve(context.Background(), "cust-1", "+15551234567", "sms", "any message", "")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", res.Conversation.ID)
	assert.False(t, res.IsNew)
	assert.Empty(t, res.Merged)
	assert.Equal(t, now, res.Conversation.LastMessageAt)
}

func TestResolveReactivatesRecentlyResolvedOnFollowUp(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	seedConversation(store, "conv-1", models.ConversationResolved, now.Add(-3*time.Hour), now.Add(-48*time.Hour))

	r := newTestResolver(store, now)
	res, err := r.Resolve(context.Background(), "cust-1", "+15551234567", "sms", "Hi, following up on the repair", "")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", res.Conversation.ID)
	assert.False(t, res.IsNew)
	assert.Equal(t, models.ConversationActive, res.Conversation.Status)
	assert.Equal(t, 1, store.countConversations("cust-1", "+15551234567", "sms", models.ConversationActive))
}

func TestResolveCreatesNewWhenResolvedIsStale(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	// Resolved 30 hours ago, past the reactivate window.
	seedConversation(store, "conv-1", models.ConversationResolved, now.Add(-30*time.Hour), now.Add(-40*24*time.Hour))

	r := newTestResolver(store, now)
	res, err := r.Resolve(context.Background(), "cust-1", "+15551234567", "sms", "following up on the repair", "")
	require.NoError(t, err)
	assert.True(t, res.IsNew)
	assert.NotEqual(t, "conv-1", res.Conversation.ID)
}

func TestResolveCreatesNewWhenBodyIsNotFollowUp(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	seedConversation(store, "conv-1", models.ConversationResolved, now.Add(-2*time.Hour), now.Add(-40*24*time.Hour))

	r := newTestResolver(store, now)
	res, err := r.Resolve(context.Background(), "cust-1", "+15551234567", "sms", "I'd like a quote for a new water heater", "")
	require.NoError(t, err)
	assert.True(t, res.IsNew)
}

func TestResolveEmptyBodyResumesRecentResolved(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	seedConversation(store, "conv-1", models.ConversationResolved, now.Add(-2*time.Hour), now.Add(-40*24*time.Hour))

	r := newTestResolver(store, now)
	res, err := r.Resolve(context.Background(), "cust-1", "+15551234567", "sms", "", "")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", res.Conversation.ID)
	assert.False(t, res.IsNew)
}

func TestResolveMergesDuplicateActives(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	seedConversation(store, "conv-old", models.ConversationActive, now.Add(-5*time.Hour), now.Add(-6*time.Hour))
	canonical := seedConversation(store, "conv-new", models.ConversationActive, now.Add(-time.Hour), now.Add(-2*time.Hour))
	seedConversation(store, "conv-mid", models.ConversationActive, now.Add(-3*time.Hour), now.Add(-4*time.Hour))

	// Orphan messages on the losers must follow them into the canonical thread.
	store.messages["m1"] = &models.Message{ID: "m1", ConversationID: "conv-old"}
	store.messages["m2"] = &models.Message{ID: "m2", ConversationID: "conv-mid"}

	r := newTestResolver(store, now)
	res, err := r.Resolve(context.Background(), "cust-1", "+15551234567", "sms", "hello", "")
	require.NoError(t, err)

	assert.Equal(t, canonical.ID, res.Conversation.ID)
	assert.ElementsMatch(t, []string{"conv-old", "conv-mid"}, res.Merged)
	assert.Equal(t, 1, store.countConversations("cust-1", "+15551234567", "sms", models.ConversationActive))
	assert.Equal(t, 2, store.countConversations("cust-1", "+15551234567", "sms", models.ConversationArchived))
	assert.Equal(t, canonical.ID, store.messages["m1"].ConversationID)
	assert.Equal(t, canonical.ID, store.messages["m2"].ConversationID)
}

func TestResolveMergesRecentDuplicatesWithoutActive(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	seedConversation(store, "conv-a", models.ConversationResolved, now.Add(-80*time.Hour), now.Add(-3*24*time.Hour))
	winner := seedConversation(store, "conv-b", models.ConversationResolved, now.Add(-50*time.Hour), now.Add(-2*24*time.Hour))

	r := newTestResolver(store, now)
	res, err := r.Resolve(context.Background(), "cust-1", "+15551234567", "sms", "I need a quote please", "")
	require.NoError(t, err)

	assert.Equal(t, winner.ID, res.Conversation.ID)
	assert.Equal(t, []string{"conv-a"}, res.Merged)
	assert.Equal(t, models.ConversationActive, res.Conversation.Status)
}

func TestResolveCreateDerivesPriority(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		body string
		want models.Priority
	}{
		{"We have a burst pipe, water everywhere", models.PriorityEmergency},
		{"Can someone come today? It's urgent", models.PriorityHigh},
		{"Would like to schedule a maintenance visit", models.PriorityMedium},
	}
	for _, tc := range cases {
		store := newMemStore()
		r := newTestResolver(store, now)
		res, err := r.Resolve(context.Background(), "cust-1", "+15551234567", "sms", tc.body, "thread-9")
		require.NoError(t, err)
		assert.True(t, res.IsNew)
		assert.Equal(t, tc.want, res.Conversation.Priority, "body %q", tc.body)
		assert.Equal(t, "thread-9", res.Conversation.ExternalThreadID)
	}
}

func TestResolveIgnoresArchivedConversations(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	seedConversation(store, "conv-archived", models.ConversationArchived, now.Add(-time.Hour), now.Add(-2*time.Hour))

	r := newTestResolver(store, now)
	res, err := r.Resolve(context.Background(), "cust-1", "+15551234567", "sms", "hello", "")
	require.NoError(t, err)
	assert.True(t, res.IsNew)
	assert.NotEqual(t, "conv-archived", res.Conversation.ID)
}
