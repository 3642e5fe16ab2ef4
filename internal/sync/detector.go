package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
)

// DefaultDuplicateWindow is the time tolerance within which two messages
// with identical phone/body/direction are treated as the same logical
// message despite differing provider ids.
const DefaultDuplicateWindow = 24 * time.Hour

// DuplicateResult reports whether an external message was already imported.
type DuplicateResult struct {
	Duplicate        bool    `json:"duplicate"`
	MatchedMessageID string  `json:"matched_message_id,omitempty"`
	Confidence       float64 `json:"confidence"`
}

// DuplicateDetector decides whether an incoming external message was
// already imported: first by exact provider id mapping, then by a
// content-based match inside the duplicate window. The fuzzy check covers
// provider redelivery under a new id and the webhook+poll race.
type DuplicateDetector struct {
	messages MessageStore
	window   time.Duration
}

// NewDuplicateDetector creates a detector. A zero window falls back to
// DefaultDuplicateWindow.
func NewDuplicateDetector(messages MessageStore, window time.Duration) *DuplicateDetector {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &DuplicateDetector{messages: messages, window: window}
}

// IsDuplicate checks the message against previous imports. phone is the
// already normalized E.164 number. The detector fails open: a lookup error
// is logged and reported as not-duplicate so a legitimate message is never
// silently dropped.
func (d *DuplicateDetector) IsDuplicate(ctx context.Context, ext *models.ExternalMessage, phone, accountID string) DuplicateResult {
	msgID, err := d.messages.MessageIDByExternalID(ctx, ext.ExternalID, accountID)
	if err != nil {
		log.Warn().Err(err).
			Str("externalID", ext.ExternalID).
			Str("accountID", accountID).
			Msg("External id lookup failed, treating message as not duplicate")
		return DuplicateResult{}
	}
	if msgID != "" {
		return DuplicateResult{Duplicate: true, MatchedMessageID: msgID, Confidence: 1.0}
	}

	from := ext.SentAt.Add(-d.window)
	to := ext.SentAt.Add(d.window)
	match, err := d.messages.FindMessageByContent(ctx, phone, ext.Body, ext.Direction, from, to)
	if err != nil {
		log.Warn().Err(err).
			Str("externalID", ext.ExternalID).
			Str("phone", phone).
			Msg("Content duplicate lookup failed, treating message as not duplicate")
		return DuplicateResult{}
	}
	if match != nil {
		log.Debug().
			Str("externalID", ext.ExternalID).
			Str("matchedMessageID", match.ID).
			Msg("Content duplicate detected inside window")
		return DuplicateResult{Duplicate: true, MatchedMessageID: match.ID, Confidence: 0.9}
	}

	return DuplicateResult{}
}
