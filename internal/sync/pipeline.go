package sync

import (
	"context"
	"fmt"
	"strings"

	"feedsync/internal/models"
	"feedsync/internal/phone"
)

// ProcessStatus classifies the outcome of one message through the pipeline.
type ProcessStatus string

const (
	StatusImported  ProcessStatus = "imported"
	StatusDuplicate ProcessStatus = "duplicate"
	StatusSkipped   ProcessStatus = "skipped"
)

// ProcessResult reports what one ProcessMessage call did.
type ProcessResult struct {
	Status              ProcessStatus
	Message             *models.Message
	Customer            *models.Customer
	CustomerCreated     bool
	Conversation        *models.Conversation
	MergedConversations []string
	MatchedMessageID    string
}

// Pipeline is the per-message path shared by the batch orchestrator and the
// webhook boundary: dedup gate, identity resolution, conversation
// resolution, import. Running both ingestion modes through the same path
// keeps their semantics identical.
type Pipeline struct {
	normalizer    *phone.Normalizer
	detector      *DuplicateDetector
	identity      *IdentityResolver
	conversations *ConversationResolver
	importer      *MessageImporter
	classifier    Classifier
}

// NewPipeline wires the per-message path.
func NewPipeline(normalizer *phone.Normalizer, detector *DuplicateDetector, identity *IdentityResolver, conversations *ConversationResolver, importer *MessageImporter, classifier Classifier) *Pipeline {
	return &Pipeline{
		normalizer:    normalizer,
		detector:      detector,
		identity:      identity,
		conversations: conversations,
		importer:      importer,
		classifier:    classifier,
	}
}

// ProcessMessage runs one external message through the full path. A missing
// phone, body or provider id returns an error wrapping ErrMalformedMessage;
// callers count those separately from processing errors.
func (p *Pipeline) ProcessMessage(ctx context.Context, accountID string, ext *models.ExternalMessage) (*ProcessResult, error) {
	if err := validateExternalMessage(ext); err != nil {
		return &ProcessResult{Status: StatusSkipped}, err
	}

	normalized, err := p.normalizer.Normalize(ext.PhoneNumber)
	if err != nil {
		return &ProcessResult{Status: StatusSkipped}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if dup := p.detector.IsDuplicate(ctx, ext, normalized, accountID); dup.Duplicate {
		return &ProcessResult{Status: StatusDuplicate, MatchedMessageID: dup.MatchedMessageID}, nil
	}

	idRes, err := p.identity.ResolveCustomer(ctx, normalized, ResolveOptions{
		Name:            ext.Name,
		Email:           ext.Email,
		CreateIfMissing: true,
		FuzzyMatch:      true,
	})
	if err != nil {
		return nil, err
	}
	if idRes.Customer == nil {
		return nil, fmt.Errorf("no customer resolved for %s", normalized)
	}

	convRes, err := p.conversations.Resolve(ctx, idRes.Customer.ID, normalized, platformFor(ext), ext.Body, ext.ThreadID)
	if err != nil {
		return nil, err
	}

	emergency := p.classifier.Priority(ext.Body) == models.PriorityEmergency
	msg, err := p.importer.Import(ctx, convRes.Conversation.ID, idRes.Customer.ID, accountID, normalized, ext, emergency)
	if err != nil {
		return nil, err
	}

	return &ProcessResult{
		Status:              StatusImported,
		Message:             msg,
		Customer:            idRes.Customer,
		CustomerCreated:     idRes.MatchType == MatchCreated,
		Conversation:        convRes.Conversation,
		MergedConversations: convRes.Merged,
	}, nil
}

func validateExternalMessage(ext *models.ExternalMessage) error {
	switch {
	case ext == nil:
		return fmt.Errorf("%w: nil message", ErrMalformedMessage)
	case strings.TrimSpace(ext.ExternalID) == "":
		return fmt.Errorf("%w: missing external id", ErrMalformedMessage)
	case strings.TrimSpace(ext.PhoneNumber) == "":
		return fmt.Errorf("%w: missing phone number", ErrMalformedMessage)
	case strings.TrimSpace(ext.Body) == "" && len(ext.Attachments) == 0:
		return fmt.Errorf("%w: missing body", ErrMalformedMessage)
	case ext.Direction != models.DirectionInbound && ext.Direction != models.DirectionOutbound:
		return fmt.Errorf("%w: invalid direction %q", ErrMalformedMessage, ext.Direction)
	default:
		return nil
	}
}

// platformFor tags conversations with the transport the message arrived on.
// The provider feed currently carries SMS only.
func platformFor(_ *models.ExternalMessage) string {
	return "sms"
}
