package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStorePutDelete(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	key := Key("bot-1", "doc-1.pdf")
	if err := fs.Put(ctx, key, strings.NewReader("%PDF"), 4, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "bot-1", "doc-1.pdf"))
	if err != nil || string(data) != "%PDF" {
		t.Fatalf("unexpected stored file %q %v", data, err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

func TestFileStoreDeletePrefix(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	_ = fs.Put(ctx, Key("bot-1", "a.pdf"), strings.NewReader("a"), 1, "")
	_ = fs.Put(ctx, Key("bot-2", "b.pdf"), strings.NewReader("b"), 1, "")
	if err := fs.DeletePrefix(ctx, "bot-1"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bot-1")); !os.IsNotExist(err) {
		t.Fatalf("expected bot-1 folder removed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bot-2", "b.pdf")); err != nil {
		t.Fatalf("expected bot-2 file kept: %v", err)
	}
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := fs.Path("../outside.pdf"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if got := Key("../../etc", "../passwd"); got != "etc/passwd" {
		t.Fatalf("expected sanitized key, got %q", got)
	}
}
