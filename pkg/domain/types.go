package domain

import "time"

// Bot appearance defaults.
const (
	DefaultBotName        = "My Chatbot"
	DefaultWelcomeMessage = "Hi there! 👋 Ask me anything about the document."
	DefaultPrimaryColor   = "#6C63FF"
)

// LegacyTenantKey scopes the single-tenant /upload and /chat routes.
const LegacyTenantKey = "default"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Bot struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	WelcomeMessage string    `json:"welcomeMessage"`
	PrimaryColor   string    `json:"primaryColor"`
	APIKey         string    `json:"apiKey"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TenantKey returns the key that scopes the bot's vector collection.
func (b Bot) TenantKey() string {
	return "bot-" + b.ID
}

type Document struct {
	ID           string    `json:"id"`
	BotID        string    `json:"botId"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	ChunkCount   int       `json:"chunkCount"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type ChatLog struct {
	ID             string    `json:"id"`
	BotID          string    `json:"botId"`
	SessionID      string    `json:"sessionId"`
	UserMessage    string    `json:"userMessage"`
	BotResponse    string    `json:"botResponse"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// BotStats summarizes a bot for the dashboard.
type BotStats struct {
	Bot           Bot `json:"bot"`
	DocumentCount int `json:"documentCount"`
	ChatCount     int `json:"chatCount"`
}

type CollectionStatus string

const (
	CollectionActive  CollectionStatus = "active"
	CollectionRetired CollectionStatus = "retired"
)

// Collection describes one versioned vector collection of a tenant.
type Collection struct {
	Name       string           `json:"name"`
	TenantKey  string           `json:"tenantKey"`
	EmbedderID string           `json:"embedderId"`
	Dimension  int              `json:"dimension"`
	Status     CollectionStatus `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Chunk metadata keys stored alongside each embedded chunk.
const (
	MetaTenant         = "tenant"
	MetaDocumentID     = "document_id"
	MetaChunkIndex     = "chunk_index"
	MetaSourceFilename = "source_filename"
)

type Chunk struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}
