package store

import (
	"errors"
	"testing"
	"time"

	"docbot/pkg/domain"
)

func TestMemoryStoreRejectsDuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateUser(domain.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	err := s.CreateUser(domain.User{ID: "u2", Email: "A@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	u, ok, err := s.GetUserByEmail("a@EXAMPLE.com")
	if err != nil || !ok || u.ID != "u1" {
		t.Fatalf("lookup by email: %+v %v %v", u, ok, err)
	}
}

func TestMemoryStoreDeleteBotCascades(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	bot := domain.Bot{ID: "b1", UserID: "u1", APIKey: "k1", CreatedAt: now}
	if err := s.SaveBot(bot); err != nil {
		t.Fatalf("save bot: %v", err)
	}
	if err := s.SaveBot(domain.Bot{ID: "b2", UserID: "u1", APIKey: "k1"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate api key error, got %v", err)
	}
	_ = s.SaveDocument(domain.Document{ID: "d1", BotID: "b1", UploadedAt: now})
	_ = s.AppendChatLog(domain.ChatLog{ID: "l1", BotID: "b1"})

	if err := s.DeleteBot("b1"); err != nil {
		t.Fatalf("delete bot: %v", err)
	}
	if n, _ := s.CountDocuments("b1"); n != 0 {
		t.Fatalf("expected documents removed, got %d", n)
	}
	if n, _ := s.CountChatLogs("b1"); n != 0 {
		t.Fatalf("expected chat logs removed, got %d", n)
	}
	if _, ok, _ := s.GetBotByAPIKey("k1"); ok {
		t.Fatalf("expected api key lookup to miss after delete")
	}
}

func TestMemoryStoreListChatLogsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []string{"l1", "l2", "l3"} {
		_ = s.AppendChatLog(domain.ChatLog{ID: id, BotID: "b1"})
	}
	logs, err := s.ListChatLogs("b1", 2)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 || logs[0].ID != "l3" || logs[1].ID != "l2" {
		t.Fatalf("unexpected logs %+v", logs)
	}
}
