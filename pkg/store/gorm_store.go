package store

import (
	"errors"
	"fmt"

	"docbot/pkg/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open DB. Call Migrate before first use.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the relational tables and their cascading foreign keys.
func (s *GormStore) Migrate() error {
	return WithMigrationLock(s.db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BotModel{}, &DocumentModel{}, &ChatLogModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public' AND table_name = 'bots'
					AND constraint_name = 'bots_user_id_fkey'
				) THEN
					ALTER TABLE bots ADD CONSTRAINT bots_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public' AND table_name = 'documents'
					AND constraint_name = 'documents_bot_id_fkey'
				) THEN
					ALTER TABLE documents ADD CONSTRAINT documents_bot_id_fkey
					FOREIGN KEY (bot_id) REFERENCES bots(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public' AND table_name = 'chat_logs'
					AND constraint_name = 'chat_logs_bot_id_fkey'
				) THEN
					ALTER TABLE chat_logs ADD CONSTRAINT chat_logs_bot_id_fkey
					FOREIGN KEY (bot_id) REFERENCES bots(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	})
}

// CreateUser inserts a user. A taken email yields ErrDuplicate.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return translate(s.db.Create(&model).Error)
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveBot creates or updates a bot.
func (s *GormStore) SaveBot(b domain.Bot) error {
	model := botToModel(b)
	return translate(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "welcome_message", "primary_color", "api_key"}),
	}).Create(&model).Error)
}

// GetBot returns a bot by ID.
func (s *GormStore) GetBot(id string) (domain.Bot, bool, error) {
	return s.findBot("id = ?", id)
}

// GetBotByAPIKey returns the bot that owns apiKey.
func (s *GormStore) GetBotByAPIKey(apiKey string) (domain.Bot, bool, error) {
	return s.findBot("api_key = ?", apiKey)
}

func (s *GormStore) findBot(query string, arg any) (domain.Bot, bool, error) {
	var model BotModel
	if err := s.db.Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Bot{}, false, nil
		}
		return domain.Bot{}, false, err
	}
	return botFromModel(model), true, nil
}

// ListBotsByUser returns the user's bots, oldest first.
func (s *GormStore) ListBotsByUser(userID string) ([]domain.Bot, error) {
	var models []BotModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Bot, 0, len(models))
	for _, m := range models {
		out = append(out, botFromModel(m))
	}
	return out, nil
}

// DeleteBot removes the bot. Documents and chat logs go with it via FK cascade.
func (s *GormStore) DeleteBot(id string) error {
	return s.db.Delete(&BotModel{}, "id = ?", id).Error
}

// SaveDocument creates or updates a document record.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filename", "original_name", "chunk_count"}),
	}).Create(&model).Error
}

// GetDocument returns a document by ID.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocuments returns a bot's documents, newest first.
func (s *GormStore) ListDocuments(botID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Where("bot_id = ?", botID).Order("uploaded_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, len(models))
	for _, m := range models {
		out = append(out, documentFromModel(m))
	}
	return out, nil
}

// CountDocuments returns how many documents a bot has.
func (s *GormStore) CountDocuments(botID string) (int, error) {
	var count int64
	if err := s.db.Model(&DocumentModel{}).Where("bot_id = ?", botID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// DeleteDocument removes a document row.
func (s *GormStore) DeleteDocument(id string) error {
	return s.db.Delete(&DocumentModel{}, "id = ?", id).Error
}

// AppendChatLog inserts a chat log entry.
func (s *GormStore) AppendChatLog(l domain.ChatLog) error {
	model := chatLogToModel(l)
	return s.db.Create(&model).Error
}

// ListChatLogs returns the latest chat logs of a bot, newest first.
func (s *GormStore) ListChatLogs(botID string, limit int) ([]domain.ChatLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []ChatLogModel
	if err := s.db.Where("bot_id = ?", botID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ChatLog, 0, len(models))
	for _, m := range models {
		out = append(out, chatLogFromModel(m))
	}
	return out, nil
}

// CountChatLogs returns how many chat logs a bot has.
func (s *GormStore) CountChatLogs(botID string) (int, error) {
	var count int64
	if err := s.db.Model(&ChatLogModel{}).Where("bot_id = ?", botID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func userToModel(u domain.User) UserModel {
	return UserModel{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{ID: m.ID, Email: m.Email, PasswordHash: m.PasswordHash, CreatedAt: m.CreatedAt}
}

func botToModel(b domain.Bot) BotModel {
	return BotModel{
		ID:             b.ID,
		UserID:         b.UserID,
		Name:           b.Name,
		WelcomeMessage: b.WelcomeMessage,
		PrimaryColor:   b.PrimaryColor,
		APIKey:         b.APIKey,
		CreatedAt:      b.CreatedAt,
	}
}

func botFromModel(m BotModel) domain.Bot {
	return domain.Bot{
		ID:             m.ID,
		UserID:         m.UserID,
		Name:           m.Name,
		WelcomeMessage: m.WelcomeMessage,
		PrimaryColor:   m.PrimaryColor,
		APIKey:         m.APIKey,
		CreatedAt:      m.CreatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:           d.ID,
		BotID:        d.BotID,
		Filename:     d.Filename,
		OriginalName: d.OriginalName,
		ChunkCount:   d.ChunkCount,
		UploadedAt:   d.UploadedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:           m.ID,
		BotID:        m.BotID,
		Filename:     m.Filename,
		OriginalName: m.OriginalName,
		ChunkCount:   m.ChunkCount,
		UploadedAt:   m.UploadedAt,
	}
}

func chatLogToModel(l domain.ChatLog) ChatLogModel {
	return ChatLogModel{
		ID:             l.ID,
		BotID:          l.BotID,
		SessionID:      l.SessionID,
		UserMessage:    l.UserMessage,
		BotResponse:    l.BotResponse,
		ResponseTimeMs: l.ResponseTimeMs,
		CreatedAt:      l.CreatedAt,
	}
}

func chatLogFromModel(m ChatLogModel) domain.ChatLog {
	return domain.ChatLog{
		ID:             m.ID,
		BotID:          m.BotID,
		SessionID:      m.SessionID,
		UserMessage:    m.UserMessage,
		BotResponse:    m.BotResponse,
		ResponseTimeMs: m.ResponseTimeMs,
		CreatedAt:      m.CreatedAt,
	}
}
