package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type BotModel struct {
	ID             string    `gorm:"primaryKey"`
	UserID         string    `gorm:"not null;index"`
	Name           string    `gorm:"not null"`
	WelcomeMessage string    `gorm:"type:text"`
	PrimaryColor   string    `gorm:"size:16"`
	APIKey         string    `gorm:"uniqueIndex;not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (BotModel) TableName() string { return "bots" }

type DocumentModel struct {
	ID           string    `gorm:"primaryKey"`
	BotID        string    `gorm:"not null;index"`
	Filename     string    `gorm:"not null"`
	OriginalName string    `gorm:"not null"`
	ChunkCount   int       `gorm:"not null"`
	UploadedAt   time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }

type ChatLogModel struct {
	ID             string    `gorm:"primaryKey"`
	BotID          string    `gorm:"not null;index"`
	SessionID      string    `gorm:"index"`
	UserMessage    string    `gorm:"type:text;not null"`
	BotResponse    string    `gorm:"type:text;not null"`
	ResponseTimeMs int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;index"`
}

func (ChatLogModel) TableName() string { return "chat_logs" }
