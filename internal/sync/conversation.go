package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
)

const (
	// DefaultReactivateWindow is how recently a resolved conversation must
	// have seen a message to be resumed instead of starting a new thread.
	DefaultReactivateWindow = 24 * time.Hour

	// DefaultMergeWindow bounds how old duplicate conversations can be and
	// still be collapsed into one canonical thread.
	DefaultMergeWindow = 7 * 24 * time.Hour
)

// ConversationResult is the outcome of a resolveConversation call.
type ConversationResult struct {
	Conversation *models.Conversation
	IsNew        bool
	Merged       []string
}

// ConversationResolver maps (customer, phone, platform) to a conversation:
// reuse the active one, reactivate a recently resolved one, merge duplicate
// threads created by a race, or create a new thread. After Resolve returns,
// exactly one active conversation exists for the key.
type ConversationResolver struct {
	conversations    ConversationStore
	classifier       Classifier
	reactivateWindow time.Duration
	mergeWindow      time.Duration
	now              func() time.Time
}

// NewConversationResolver creates a resolver with the default windows.
func NewConversationResolver(conversations ConversationStore, classifier Classifier) *ConversationResolver {
	return &ConversationResolver{
		conversations:    conversations,
		classifier:       classifier,
		reactivateWindow: DefaultReactivateWindow,
		mergeWindow:      DefaultMergeWindow,
		now:              time.Now,
	}
}

// Resolve returns the conversation the incoming message belongs to.
// messageBody may be empty (e.g. attachment-only messages); an empty body
// defaults to resuming a recent thread. threadID, when present, is stored
// on newly created conversations.
func (r *ConversationResolver) Resolve(ctx context.Context, customerID, phone, platform, messageBody, threadID string) (*ConversationResult, error) {
	convs, err := r.conversations.ConversationsByKey(ctx, customerID, phone, platform)
	if err != nil {
		return nil, fmt.Errorf("conversation lookup for customer %s: %w", customerID, err)
	}
	now := r.now()

	var actives []models.Conversation
	var recent []models.Conversation // non-archived, created inside the merge window
	cutoff := now.Add(-r.mergeWindow)
	for _, c := range convs {
		if c.Status == models.ConversationArchived {
			continue
		}
		if c.Status == models.ConversationActive {
			actives = append(actives, c)
		}
		if c.CreatedAt.After(cutoff) {
			recent = append(recent, c)
		}
	}

	// More than one active thread means a concurrent-import race already
	// broke the single-active invariant; collapse before anything else.
	if len(actives) > 1 {
		return r.merge(ctx, actives, now)
	}

	if len(actives) == 1 {
		active := actives[0]
		if err := r.conversations.TouchConversation(ctx, active.ID, now); err != nil {
			return nil, fmt.Errorf("touch conversation %s: %w", active.ID, err)
		}
		active.LastMessageAt = now
		return &ConversationResult{Conversation: &active}, nil
	}

	// No active thread. A resolved one with traffic inside the reactivate
	// window is resumed when the message reads like a follow-up, or when
	// there is no body to judge by.
	for _, c := range convs {
		if c.Status != models.ConversationResolved {
			continue
		}
		if now.Sub(c.LastMessageAt) > r.reactivateWindow {
			continue
		}
		if messageBody != "" && !r.classifier.IsFollowUp(messageBody) {
			continue
		}
		if err := r.conversations.UpdateConversationStatus(ctx, c.ID, models.ConversationActive); err != nil {
			return nil, fmt.Errorf("reactivate conversation %s: %w", c.ID, err)
		}
		if err := r.conversations.TouchConversation(ctx, c.ID, now); err != nil {
			return nil, fmt.Errorf("touch conversation %s: %w", c.ID, err)
		}
		c.Status = models.ConversationActive
		c.LastMessageAt = now
		log.Info().
			Str("conversationID", c.ID).
			Str("customerID", customerID).
			Msg("Reactivated recently resolved conversation")
		return &ConversationResult{Conversation: &c}, nil
	}

	// Duplicate threads from the same window with no clear active winner
	// also collapse into one.
	if len(recent) > 1 {
		return r.merge(ctx, recent, now)
	}

	return r.create(ctx, customerID, phone, platform, messageBody, threadID, now)
}

// merge picks the most recently updated conversation as canonical,
// re-points all messages from the others to it and archives them. The
// canonical thread ends up active.
func (r *ConversationResolver) merge(ctx context.Context, dupes []models.Conversation, now time.Time) (*ConversationResult, error) {
	sort.Slice(dupes, func(i, j int) bool {
		if !dupes[i].LastMessageAt.Equal(dupes[j].LastMessageAt) {
			return dupes[i].LastMessageAt.After(dupes[j].LastMessageAt)
		}
		return dupes[i].UpdatedAt.After(dupes[j].UpdatedAt)
	})
	canonical := dupes[0]

	merged := make([]string, 0, len(dupes)-1)
	for _, d := range dupes[1:] {
		if err := r.conversations.ReassignConversation(ctx, d.ID, canonical.ID); err != nil {
			return nil, fmt.Errorf("reassign conversation %s -> %s: %w", d.ID, canonical.ID, err)
		}
		if err := r.conversations.UpdateConversationStatus(ctx, d.ID, models.ConversationArchived); err != nil {
			return nil, fmt.Errorf("archive conversation %s: %w", d.ID, err)
		}
		merged = append(merged, d.ID)
	}

	if canonical.Status != models.ConversationActive {
		if err := r.conversations.UpdateConversationStatus(ctx, canonical.ID, models.ConversationActive); err != nil {
			return nil, fmt.Errorf("activate conversation %s: %w", canonical.ID, err)
		}
		canonical.Status = models.ConversationActive
	}
	if err := r.conversations.TouchConversation(ctx, canonical.ID, now); err != nil {
		return nil, fmt.Errorf("touch conversation %s: %w", canonical.ID, err)
	}
	canonical.LastMessageAt = now

	log.Warn().
		Str("canonicalID", canonical.ID).
		Strs("mergedIDs", merged).
		Msg("Merged duplicate conversations")
	return &ConversationResult{Conversation: &canonical, Merged: merged}, nil
}

func (r *ConversationResolver) create(ctx context.Context, customerID, phone, platform, messageBody, threadID string, now time.Time) (*ConversationResult, error) {
	priority := models.PriorityMedium
	if messageBody != "" {
		priority = r.classifier.Priority(messageBody)
	}
	conv := &models.Conversation{
		ID:               uuid.NewString(),
		CustomerID:       customerID,
		PhoneNumber:      phone,
		Platform:         platform,
		Status:           models.ConversationActive,
		Priority:         priority,
		LastMessageAt:    now,
		ExternalThreadID: threadID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation for customer %s: %w", customerID, err)
	}
	log.Info().
		Str("conversationID", conv.ID).
		Str("customerID", customerID).
		Str("priority", string(priority)).
		Msg("Created new conversation")
	return &ConversationResult{Conversation: conv, IsNew: true}, nil
}
