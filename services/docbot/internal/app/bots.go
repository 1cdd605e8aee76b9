package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"docbot/internal/util"
	"docbot/pkg/domain"
	"github.com/google/uuid"
)

const (
	maxBotNameLength        = 100
	maxWelcomeMessageLength = 500
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// BotInput carries optional appearance fields. Nil leaves a field unchanged.
type BotInput struct {
	Name           *string `json:"name"`
	WelcomeMessage *string `json:"welcomeMessage"`
	PrimaryColor   *string `json:"primaryColor"`
}

// Dashboard is the signed-in overview.
type Dashboard struct {
	User domain.User       `json:"user"`
	Bots []domain.BotStats `json:"bots"`
}

// WidgetConfig is the public appearance of a bot.
type WidgetConfig struct {
	BotID          string `json:"botId"`
	Name           string `json:"name"`
	WelcomeMessage string `json:"welcomeMessage"`
	PrimaryColor   string `json:"primaryColor"`
}

// CreateBot creates a bot with defaults for any omitted field.
func (a *App) CreateBot(user domain.User, in BotInput) (domain.Bot, error) {
	bot := domain.Bot{
		ID:             util.NewID(),
		UserID:         user.ID,
		Name:           domain.DefaultBotName,
		WelcomeMessage: domain.DefaultWelcomeMessage,
		PrimaryColor:   domain.DefaultPrimaryColor,
		APIKey:         newAPIKey(),
		CreatedAt:      a.now(),
	}
	if err := applyBotInput(&bot, in); err != nil {
		return domain.Bot{}, err
	}
	if err := a.store.SaveBot(bot); err != nil {
		return domain.Bot{}, fmt.Errorf("save bot: %w", err)
	}
	return bot, nil
}

// ListBots returns the user's bots.
func (a *App) ListBots(user domain.User) ([]domain.Bot, error) {
	return a.store.ListBotsByUser(user.ID)
}

// GetBot returns a bot owned by user. Bots of other users are reported as not found.
func (a *App) GetBot(user domain.User, botID string) (domain.Bot, error) {
	bot, ok, err := a.store.GetBot(botID)
	if err != nil {
		return domain.Bot{}, fmt.Errorf("get bot: %w", err)
	}
	if !ok || bot.UserID != user.ID {
		return domain.Bot{}, ErrBotNotFound
	}
	return bot, nil
}

// UpdateBot changes the bot's appearance.
func (a *App) UpdateBot(user domain.User, botID string, in BotInput) (domain.Bot, error) {
	bot, err := a.GetBot(user, botID)
	if err != nil {
		return domain.Bot{}, err
	}
	if err := applyBotInput(&bot, in); err != nil {
		return domain.Bot{}, err
	}
	if err := a.store.SaveBot(bot); err != nil {
		return domain.Bot{}, fmt.Errorf("save bot: %w", err)
	}
	return bot, nil
}

// RotateAPIKey issues a new widget key. The old key stops working immediately.
func (a *App) RotateAPIKey(user domain.User, botID string) (domain.Bot, error) {
	bot, err := a.GetBot(user, botID)
	if err != nil {
		return domain.Bot{}, err
	}
	bot.APIKey = newAPIKey()
	if err := a.store.SaveBot(bot); err != nil {
		return domain.Bot{}, fmt.Errorf("save bot: %w", err)
	}
	return bot, nil
}

// DeleteBot removes the bot with its collections, stored files, documents and logs.
func (a *App) DeleteBot(ctx context.Context, user domain.User, botID string) error {
	bot, err := a.GetBot(user, botID)
	if err != nil {
		return err
	}
	if err := a.vectors.Drop(ctx, bot.TenantKey()); err != nil {
		return fmt.Errorf("drop collections: %w", err)
	}
	if err := a.blobs.DeletePrefix(ctx, bot.ID); err != nil {
		util.LoggerFromContext(ctx).Warn("bot_files_delete_failed", "bot", bot.ID, "err", err)
	}
	if err := a.store.DeleteBot(bot.ID); err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	return nil
}

// Dashboard lists the user's bots with document and chat counts.
func (a *App) Dashboard(user domain.User) (Dashboard, error) {
	bots, err := a.store.ListBotsByUser(user.ID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list bots: %w", err)
	}
	stats := make([]domain.BotStats, 0, len(bots))
	for _, b := range bots {
		docs, err := a.store.CountDocuments(b.ID)
		if err != nil {
			return Dashboard{}, fmt.Errorf("count documents: %w", err)
		}
		chats, err := a.store.CountChatLogs(b.ID)
		if err != nil {
			return Dashboard{}, fmt.Errorf("count chats: %w", err)
		}
		stats = append(stats, domain.BotStats{Bot: b, DocumentCount: docs, ChatCount: chats})
	}
	return Dashboard{User: user, Bots: stats}, nil
}

// WidgetConfig returns the public appearance for an API key.
func (a *App) WidgetConfig(apiKey string) (WidgetConfig, error) {
	bot, ok, err := a.store.GetBotByAPIKey(strings.TrimSpace(apiKey))
	if err != nil {
		return WidgetConfig{}, fmt.Errorf("get bot: %w", err)
	}
	if !ok {
		return WidgetConfig{}, ErrBotNotFound
	}
	return WidgetConfig{
		BotID:          bot.ID,
		Name:           bot.Name,
		WelcomeMessage: bot.WelcomeMessage,
		PrimaryColor:   bot.PrimaryColor,
	}, nil
}

func applyBotInput(bot *domain.Bot, in BotInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || utf8.RuneCountInString(name) > maxBotNameLength {
			return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxBotNameLength)
		}
		bot.Name = name
	}
	if in.WelcomeMessage != nil {
		msg := strings.TrimSpace(*in.WelcomeMessage)
		if utf8.RuneCountInString(msg) > maxWelcomeMessageLength {
			return fmt.Errorf("%w: welcome message too long", ErrInvalidInput)
		}
		bot.WelcomeMessage = msg
	}
	if in.PrimaryColor != nil {
		color := strings.TrimSpace(*in.PrimaryColor)
		if !colorPattern.MatchString(color) {
			return fmt.Errorf("%w: primary color must look like #RRGGBB", ErrInvalidInput)
		}
		bot.PrimaryColor = color
	}
	return nil
}

func newAPIKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
