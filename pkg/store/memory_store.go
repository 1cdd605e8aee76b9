package store

import (
	"sort"
	"strings"
	"sync"

	"docbot/pkg/domain"
)

// MemoryStore keeps records in-process. It backs the no-database dev mode and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User // key: user ID
	email map[string]string      // lowercase email -> user ID
	bots  map[string]domain.Bot
	docs  map[string]domain.Document
	logs  map[string][]domain.ChatLog // key: bot ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
		bots:  make(map[string]domain.Bot),
		docs:  make(map[string]domain.Document),
		logs:  make(map[string][]domain.ChatLog),
	}
}

// CreateUser inserts a user. A taken email yields ErrDuplicate.
func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := m.email[key]; ok {
		return ErrDuplicate
	}
	m.users[u.ID] = u
	m.email[key] = u.ID
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[strings.ToLower(email)]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveBot creates or updates a bot. API keys are unique across bots.
func (m *MemoryStore) SaveBot(b domain.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.bots {
		if id != b.ID && other.APIKey == b.APIKey {
			return ErrDuplicate
		}
	}
	m.bots[b.ID] = b
	return nil
}

// GetBot returns a bot by ID.
func (m *MemoryStore) GetBot(id string) (domain.Bot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[id]
	return b, ok, nil
}

// GetBotByAPIKey returns the bot that owns apiKey.
func (m *MemoryStore) GetBotByAPIKey(apiKey string) (domain.Bot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bots {
		if b.APIKey == apiKey {
			return b, true, nil
		}
	}
	return domain.Bot{}, false, nil
}

// ListBotsByUser returns the user's bots, oldest first.
func (m *MemoryStore) ListBotsByUser(userID string) ([]domain.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Bot, 0)
	for _, b := range m.bots {
		if b.UserID == userID {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// DeleteBot removes the bot along with its documents and chat logs.
func (m *MemoryStore) DeleteBot(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bots, id)
	delete(m.logs, id)
	for docID, d := range m.docs {
		if d.BotID == id {
			delete(m.docs, docID)
		}
	}
	return nil
}

// SaveDocument creates or updates a document record.
func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ID] = d
	return nil
}

// GetDocument returns a document by ID.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	return d, ok, nil
}

// ListDocuments returns a bot's documents, newest first.
func (m *MemoryStore) ListDocuments(botID string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0)
	for _, d := range m.docs {
		if d.BotID == botID {
			res = append(res, d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UploadedAt.After(res[j].UploadedAt) })
	return res, nil
}

// CountDocuments returns how many documents a bot has.
func (m *MemoryStore) CountDocuments(botID string) (int, error) {
	docs, err := m.ListDocuments(botID)
	return len(docs), err
}

// DeleteDocument removes a document record.
func (m *MemoryStore) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

// AppendChatLog appends a chat log entry.
func (m *MemoryStore) AppendChatLog(l domain.ChatLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[l.BotID] = append(m.logs[l.BotID], l)
	return nil
}

// ListChatLogs returns the latest chat logs of a bot, newest first.
func (m *MemoryStore) ListChatLogs(botID string, limit int) ([]domain.ChatLog, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	logs := m.logs[botID]
	res := make([]domain.ChatLog, 0, min(limit, len(logs)))
	for i := len(logs) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, logs[i])
	}
	return res, nil
}

// CountChatLogs returns how many chat logs a bot has.
func (m *MemoryStore) CountChatLogs(botID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs[botID]), nil
}
