package sync

import (
	"strings"

	"feedsync/internal/models"
)

// Classifier decides follow-up intent and priority from a message body.
// The keyword heuristics are fuzzy business rules, not contracts, so they
// are injectable and swappable.
type Classifier interface {
	IsFollowUp(body string) bool
	Priority(body string) models.Priority
}

// KeywordClassifier is the default Classifier: case-insensitive substring
// matching against fixed keyword sets.
type KeywordClassifier struct {
	followUp  []string
	emergency []string
	high      []string
}

// NewKeywordClassifier returns a KeywordClassifier with the default sets.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		followUp: []string{
			"follow up", "follow-up", "following up", "still",
			"again", "not fixed", "didn't work", "didnt work",
			"came back", "same problem", "same issue", "checking in",
		},
		emergency: []string{
			"emergency", "flood", "flooding", "gas leak", "smell gas",
			"burst pipe", "no heat", "no hot water", "sewage",
			"carbon monoxide", "sparking", "fire",
		},
		high: []string{
			"urgent", "asap", "as soon as possible", "right away",
			"leak", "leaking", "today",
		},
	}
}

// IsFollowUp reports whether the body reads like a continuation of an
// earlier, recently resolved conversation.
func (c *KeywordClassifier) IsFollowUp(body string) bool {
	lower := strings.ToLower(body)
	for _, kw := range c.followUp {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Priority derives the priority for a new conversation from its first
// message body. Hard safety keywords win over urgency keywords; everything
// else is medium.
func (c *KeywordClassifier) Priority(body string) models.Priority {
	lower := strings.ToLower(body)
	for _, kw := range c.emergency {
		if strings.Contains(lower, kw) {
			return models.PriorityEmergency
		}
	}
	for _, kw := range c.high {
		if strings.Contains(lower, kw) {
			return models.PriorityHigh
		}
	}
	return models.PriorityMedium
}
