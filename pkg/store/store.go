package store

import (
	"errors"
	"time"

	"docbot/pkg/domain"
)

// ErrDuplicate is returned when a unique column (email, api key) already exists.
var ErrDuplicate = errors.New("duplicate record")

// Store defines persistence operations for users, bots, documents, and chat logs.
type Store interface {
	// users
	CreateUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// bots
	SaveBot(domain.Bot) error
	GetBot(id string) (domain.Bot, bool, error)
	GetBotByAPIKey(apiKey string) (domain.Bot, bool, error)
	ListBotsByUser(userID string) ([]domain.Bot, error)
	DeleteBot(id string) error

	// documents
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocuments(botID string) ([]domain.Document, error)
	CountDocuments(botID string) (int, error)
	DeleteDocument(id string) error

	// chat logs
	AppendChatLog(domain.ChatLog) error
	ListChatLogs(botID string, limit int) ([]domain.ChatLog, error)
	CountChatLogs(botID string) (int, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// SessionTTL is implemented by session stores that know their token lifetime.
type SessionTTL interface {
	TTL() time.Duration
}
