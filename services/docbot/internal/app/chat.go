package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"docbot/internal/util"
	"docbot/pkg/domain"
	"docbot/pkg/vectorstore"
)

const maxMessageLength = 4000

// ChatRequest is a widget chat turn. Either APIKey or BotID selects the bot.
type ChatRequest struct {
	APIKey    string `json:"apiKey"`
	BotID     string `json:"botId"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ChatReply is the answer to a chat turn.
type ChatReply struct {
	Response string `json:"response"`
}

// Chat answers a widget message from the bot's documents and logs the exchange.
func (a *App) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	message, err := validateMessage(req.Message)
	if err != nil {
		return ChatReply{}, err
	}
	bot, err := a.resolveBot(req)
	if err != nil {
		return ChatReply{}, err
	}
	started := time.Now()
	answer, err := a.answer(ctx, bot.TenantKey(), message)
	if err != nil {
		return ChatReply{}, err
	}
	entry := domain.ChatLog{
		ID:             util.NewID(),
		BotID:          bot.ID,
		SessionID:      strings.TrimSpace(req.SessionID),
		UserMessage:    message,
		BotResponse:    answer,
		ResponseTimeMs: time.Since(started).Milliseconds(),
		CreatedAt:      a.now(),
	}
	if err := a.store.AppendChatLog(entry); err != nil {
		util.LoggerFromContext(ctx).Error("chat_log_append_failed", "bot", bot.ID, "err", err)
	}
	return ChatReply{Response: answer}, nil
}

// LegacyChat answers from the default tenant without a bot. An empty tenant
// key selects it; any other key is unknown. Bot tenants are only reachable
// through their API key.
func (a *App) LegacyChat(ctx context.Context, tenantKey, message string) (ChatReply, error) {
	message, err := validateMessage(message)
	if err != nil {
		return ChatReply{}, err
	}
	tenantKey = strings.TrimSpace(tenantKey)
	if tenantKey != "" && tenantKey != domain.LegacyTenantKey {
		return ChatReply{}, ErrTenantNotFound
	}
	answer, err := a.answer(ctx, domain.LegacyTenantKey, message)
	if err != nil {
		return ChatReply{}, err
	}
	return ChatReply{Response: answer}, nil
}

// ChatLogs returns recent chat logs of a bot, newest first.
func (a *App) ChatLogs(user domain.User, botID string, limit int) ([]domain.ChatLog, error) {
	bot, err := a.GetBot(user, botID)
	if err != nil {
		return nil, err
	}
	return a.store.ListChatLogs(bot.ID, limit)
}

func (a *App) answer(ctx context.Context, tenantKey, message string) (string, error) {
	if err := a.waitReady(ctx); err != nil {
		return "", err
	}
	collection, err := a.vectors.Get(ctx, tenantKey)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return a.answerer.Answer(ctx, "", message)
	}
	if err != nil {
		return "", fmt.Errorf("open collection: %w", err)
	}
	contextText, err := a.retriever.Retrieve(ctx, collection, message, a.topK)
	if err != nil {
		return "", fmt.Errorf("retrieve: %w", err)
	}
	return a.answerer.Answer(ctx, contextText, message)
}

func (a *App) resolveBot(req ChatRequest) (domain.Bot, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	botID := strings.TrimSpace(req.BotID)
	var (
		bot domain.Bot
		ok  bool
		err error
	)
	switch {
	case apiKey != "":
		bot, ok, err = a.store.GetBotByAPIKey(apiKey)
	case botID != "":
		bot, ok, err = a.store.GetBot(botID)
	default:
		return domain.Bot{}, fmt.Errorf("%w: apiKey or botId required", ErrInvalidInput)
	}
	if err != nil {
		return domain.Bot{}, fmt.Errorf("lookup bot: %w", err)
	}
	if !ok {
		return domain.Bot{}, ErrBotNotFound
	}
	return bot, nil
}

func validateMessage(raw string) (string, error) {
	message := strings.TrimSpace(raw)
	if message == "" {
		return "", fmt.Errorf("%w: message required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		return "", fmt.Errorf("%w: message too long", ErrInvalidInput)
	}
	return message, nil
}
