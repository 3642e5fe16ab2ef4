package sync

import (
	"context"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/phone"
)

// memStore is a shared in-memory double for every store interface the sync
// components need, so component and orchestrator tests can run the real
// pipeline end to end without a database.
type memStore struct {
	mu            stdsync.Mutex
	customers     map[string]*models.Customer
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	mappings      map[string]string // extID|account -> messageID
	phones        map[string]*models.PhoneMapping
	sessions      map[string]*models.SyncSession

	// failOnContent makes ImportMessage fail for matching message content,
	// to drive processing-error paths.
	failOnContent string
	// lookupErr makes every dedup lookup fail, to drive fail-open paths.
	lookupErr error
}

func newMemStore() *memStore {
	return &memStore{
		customers:     make(map[string]*models.Customer),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		mappings:      make(map[string]string),
		phones:        make(map[string]*models.PhoneMapping),
		sessions:      make(map[string]*models.SyncSession),
	}
}

func (m *memStore) CustomerByPrimaryPhone(_ context.Context, phone string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.PrimaryPhone == phone && c.Active {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CustomerByAltPhone(_ context.Context, phone string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.AltPhone == phone && c.AltPhone != "" && c.Active {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) SearchCustomers(_ context.Context, name, email string) ([]models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Customer
	for _, c := range m.customers {
		if !c.Active {
			continue
		}
		if nameMatches(name, c.FullName()) || emailMatches(email, c.Email) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func nameMatches(query, candidate string) bool {
	if query == "" || candidate == "" {
		return false
	}
	lower := strings.ToLower(candidate)
	for _, token := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func emailMatches(query, candidate string) bool {
	if query == "" || candidate == "" {
		return false
	}
	return strings.Contains(strings.ToLower(candidate), strings.ToLower(query))
}

func (m *memStore) CreateCustomer(_ context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *memStore) ConversationsByKey(_ context.Context, customerID, phone, platform string) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, c := range m.conversations {
		if c.CustomerID == customerID && c.PhoneNumber == phone && c.Platform == platform {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) CreateConversation(_ context.Context, c *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.conversations[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateConversationStatus(_ context.Context, id string, status models.ConversationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) TouchConversation(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	c.LastMessageAt = at
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) ReassignConversation(_ context.Context, fromID, toID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ConversationID == fromID {
			msg.ConversationID = toID
		}
	}
	return nil
}

func (m *memStore) MessageIDByExternalID(_ context.Context, externalID, accountID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return "", m.lookupErr
	}
	return m.mappings[externalID+"|"+accountID], nil
}

func (m *memStore) FindMessageByContent(_ context.Context, phone, content string, direction models.Direction, from, to time.Time) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, msg := range m.messages {
		conv, ok := m.conversations[msg.ConversationID]
		if !ok || conv.PhoneNumber != phone {
			continue
		}
		if msg.Content != content || msg.Direction != direction {
			continue
		}
		if msg.SentAt.Before(from) || msg.SentAt.After(to) {
			continue
		}
		cp := *msg
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) ImportMessage(_ context.Context, msg *models.Message, mapping *models.ExternalIDMapping, contact PhoneContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOnContent != "" && strings.Contains(msg.Content, m.failOnContent) {
		return fmt.Errorf("induced import failure")
	}
	key := mapping.ExternalMessageID + "|" + mapping.SourceAccountID
	if _, exists := m.mappings[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMapping, mapping.ExternalMessageID)
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	m.mappings[key] = msg.ID
	if pm, ok := m.phones[contact.SourceAccountID+"|"+contact.PhoneNumber]; ok {
		pm.MessageCount++
		pm.LastContactAt = contact.At
	} else {
		m.phones[contact.SourceAccountID+"|"+contact.PhoneNumber] = &models.PhoneMapping{
			SourceAccountID: contact.SourceAccountID,
			PhoneNumber:     contact.PhoneNumber,
			CustomerID:      contact.CustomerID,
			FirstContactAt:  contact.At,
			LastContactAt:   contact.At,
			MessageCount:    1,
		}
	}
	return nil
}

func (m *memStore) CreateSession(_ context.Context, s *models.SyncSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s *models.SyncSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) SessionByID(_ context.Context, id string) (*models.SyncSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) LatestCompletedSession(_ context.Context, accountID string) (*models.SyncSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.SyncSession
	for _, s := range m.sessions {
		if s.SourceAccountID != accountID || s.Status != models.SessionCompleted {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// countConversations tallies conversations by status for one key.
func (m *memStore) countConversations(customerID, phone, platform string, status models.ConversationStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.conversations {
		if c.CustomerID == customerID && c.PhoneNumber == phone && c.Platform == platform && c.Status == status {
			n++
		}
	}
	return n
}

func (m *memStore) messageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func testNormalizer() *phone.Normalizer {
	return phone.NewNormalizer("1")
}

// newTestPipeline wires the real components over the in-memory store.
func newTestPipeline(store *memStore) *Pipeline {
	classifier := NewKeywordClassifier()
	return NewPipeline(
		testNormalizer(),
		NewDuplicateDetector(store, 0),
		NewIdentityResolver(store),
		NewConversationResolver(store, classifier),
		NewMessageImporter(store, nil),
		classifier,
	)
}
