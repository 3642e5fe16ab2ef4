package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"feedsync/internal/models"
)

func TestIsFollowUp(t *testing.T) {
	c := NewKeywordClassifier()

	assert.True(t, c.IsFollowUp("Just following up on last week's visit"))
	assert.True(t, c.IsFollowUp("the drain is STILL clogged"))
	assert.True(t, c.IsFollowUp("the same problem came back"))
	assert.False(t, c.IsFollowUp("Hi, I'd like to book an appointment"))
	assert.False(t, c.IsFollowUp(""))
}

func TestPriorityKeywords(t *testing.T) {
	c := NewKeywordClassifier()

	assert.Equal(t, models.PriorityEmergency, c.Priority("We smell gas in the basement"))
	assert.Equal(t, models.PriorityEmergency, c.Priority("BURST PIPE, please hurry"))
	assert.Equal(t, models.PriorityHigh, c.Priority("faucet is leaking, can you come today?"))
	assert.Equal(t, models.PriorityHigh, c.Priority("need this done ASAP"))
	assert.Equal(t, models.PriorityMedium, c.Priority("quote for a bathroom remodel"))
}

func TestEmergencyWinsOverHigh(t *testing.T) {
	c := NewKeywordClassifier()
	assert.Equal(t, models.PriorityEmergency, c.Priority("urgent: basement is flooding"))
}
