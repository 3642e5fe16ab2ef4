package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
)

// AttachmentStore uploads message media to durable storage and returns the
// stored URL. Optional: without one, provider URLs are kept as-is.
type AttachmentStore interface {
	Upload(ctx context.Context, accountID, messageID string, att models.Attachment) (string, error)
}

// MessageImporter persists one resolved message: the message row, its
// external id mapping and the phone mapping upsert, written as a single
// transaction by the store. All routing decisions happened upstream; this
// component only records them.
type MessageImporter struct {
	messages    MessageStore
	attachments AttachmentStore
}

// NewMessageImporter creates an importer. attachments may be nil.
func NewMessageImporter(messages MessageStore, attachments AttachmentStore) *MessageImporter {
	return &MessageImporter{messages: messages, attachments: attachments}
}

// Import writes the message. phone is the normalized E.164 number,
// emergency the flag derived upstream from the body. A mapping conflict
// surfaces as ErrDuplicateMapping: the detector should have caught it, so
// this is an error, not a retry path.
func (i *MessageImporter) Import(ctx context.Context, conversationID, customerID, accountID, phone string, ext *models.ExternalMessage, emergency bool) (*models.Message, error) {
	now := time.Now().UTC()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Direction:      ext.Direction,
		Content:        ext.Body,
		SentAt:         ext.SentAt,
		Emergency:      emergency,
		Attachments:    i.storeAttachments(ctx, accountID, ext),
		CreatedAt:      now,
	}
	mapping := &models.ExternalIDMapping{
		ExternalMessageID: ext.ExternalID,
		SourceAccountID:   accountID,
		MessageID:         msg.ID,
		CreatedAt:         now,
	}
	contact := PhoneContact{
		SourceAccountID: accountID,
		PhoneNumber:     phone,
		CustomerID:      customerID,
		At:              ext.SentAt,
	}

	if err := i.messages.ImportMessage(ctx, msg, mapping, contact); err != nil {
		return nil, fmt.Errorf("import message %s: %w", ext.ExternalID, err)
	}

	log.Debug().
		Str("messageID", msg.ID).
		Str("conversationID", conversationID).
		Str("externalID", ext.ExternalID).
		Msg("Message imported")
	return msg, nil
}

// storeAttachments uploads each attachment when an AttachmentStore is
// configured. An upload failure keeps the provider URL; losing a media copy
// must not fail the import.
func (i *MessageImporter) storeAttachments(ctx context.Context, accountID string, ext *models.ExternalMessage) []string {
	if len(ext.Attachments) == 0 {
		return nil
	}
	urls := make([]string, 0, len(ext.Attachments))
	for _, att := range ext.Attachments {
		if i.attachments == nil {
			urls = append(urls, att.URL)
			continue
		}
		stored, err := i.attachments.Upload(ctx, accountID, ext.ExternalID, att)
		if err != nil {
			log.Warn().Err(err).
				Str("externalID", ext.ExternalID).
				Str("url", att.URL).
				Msg("Attachment upload failed, keeping provider URL")
			urls = append(urls, att.URL)
			continue
		}
		urls = append(urls, stored)
	}
	return urls
}
