package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"docbot/internal/util"
	"docbot/pkg/domain"
	"docbot/pkg/pdftext"
	"docbot/pkg/storage"
)

const pdfContentType = "application/pdf"

// UploadResult reports a stored document and how many chunks it produced.
type UploadResult struct {
	Document domain.Document `json:"document"`
	Chunks   int             `json:"chunks"`
}

// LegacyUploadResult is the single-tenant upload response.
type LegacyUploadResult struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}

// UploadDocument extracts, chunks and indexes a PDF into the bot's collection,
// keeps the file, and records the document.
func (a *App) UploadDocument(ctx context.Context, user domain.User, botID, originalName string, body io.Reader) (UploadResult, error) {
	bot, err := a.GetBot(user, botID)
	if err != nil {
		return UploadResult{}, err
	}
	docID := util.NewID()
	key := storage.Key(bot.ID, docID+".pdf")
	count, err := a.ingest(ctx, bot.TenantKey(), docID, key, originalName, body)
	if err != nil {
		return UploadResult{}, err
	}
	doc := domain.Document{
		ID:           docID,
		BotID:        bot.ID,
		Filename:     key,
		OriginalName: filepath.Base(originalName),
		ChunkCount:   count,
		UploadedAt:   a.now(),
	}
	if err := a.store.SaveDocument(doc); err != nil {
		a.rollbackIngest(ctx, bot.TenantKey(), docID, key)
		return UploadResult{}, fmt.Errorf("save document: %w", err)
	}
	util.LoggerFromContext(ctx).Info("document_indexed", "bot", bot.ID, "document", docID, "chunks", count)
	return UploadResult{Document: doc, Chunks: count}, nil
}

// LegacyUpload indexes a PDF into the shared default tenant.
func (a *App) LegacyUpload(ctx context.Context, originalName string, body io.Reader) (LegacyUploadResult, error) {
	docID := util.NewID()
	key := storage.Key(domain.LegacyTenantKey, docID+".pdf")
	count, err := a.ingest(ctx, domain.LegacyTenantKey, docID, key, originalName, body)
	if err != nil {
		return LegacyUploadResult{}, err
	}
	return LegacyUploadResult{Filename: filepath.Base(originalName), Chunks: count}, nil
}

// ListDocuments returns the bot's documents.
func (a *App) ListDocuments(user domain.User, botID string) ([]domain.Document, error) {
	bot, err := a.GetBot(user, botID)
	if err != nil {
		return nil, err
	}
	return a.store.ListDocuments(bot.ID)
}

// DeleteDocument removes exactly the document's chunks, its file and its row.
func (a *App) DeleteDocument(ctx context.Context, user domain.User, botID, docID string) (int, error) {
	bot, err := a.GetBot(user, botID)
	if err != nil {
		return 0, err
	}
	doc, ok, err := a.store.GetDocument(docID)
	if err != nil {
		return 0, fmt.Errorf("get document: %w", err)
	}
	if !ok || doc.BotID != bot.ID {
		return 0, ErrDocumentNotFound
	}
	removed, err := a.vectors.Remove(ctx, bot.TenantKey(), doc.ID)
	if err != nil {
		return 0, err
	}
	if err := a.blobs.Delete(ctx, doc.Filename); err != nil {
		util.LoggerFromContext(ctx).Warn("document_file_delete_failed", "document", doc.ID, "err", err)
	}
	if err := a.store.DeleteDocument(doc.ID); err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return removed, nil
}

// ingest runs the upload pipeline and undoes partial work on failure.
func (a *App) ingest(ctx context.Context, tenantKey, docID, key, originalName string, body io.Reader) (int, error) {
	if !isPDF(originalName) {
		return 0, ErrUnsupportedFile
	}
	if body == nil {
		return 0, fmt.Errorf("%w: file required", ErrInvalidInput)
	}
	if err := a.waitReady(ctx); err != nil {
		return 0, err
	}
	path, size, err := a.spool(body)
	if err != nil {
		return 0, err
	}
	defer os.Remove(path)

	text, err := pdftext.Extract(path)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("pdf_extract_failed", "document", docID, "file", filepath.Base(originalName), "err", err)
		return 0, fmt.Errorf("%w: could not read pdf", ErrInvalidInput)
	}
	chunks := a.chunker.Split(text)
	count, err := a.vectors.Index(ctx, tenantKey, docID, filepath.Base(originalName), chunks)
	if err != nil {
		a.rollbackIngest(ctx, tenantKey, docID, "")
		return 0, fmt.Errorf("index document: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		a.rollbackIngest(ctx, tenantKey, docID, "")
		return 0, fmt.Errorf("reopen upload: %w", err)
	}
	defer f.Close()
	if err := a.blobs.Put(ctx, key, f, size, pdfContentType); err != nil {
		a.rollbackIngest(ctx, tenantKey, docID, key)
		return 0, fmt.Errorf("store file: %w", err)
	}
	return count, nil
}

// rollbackIngest is best-effort: it runs on a fresh context so a cancelled
// request still cleans up.
func (a *App) rollbackIngest(ctx context.Context, tenantKey, docID, key string) {
	logger := util.LoggerFromContext(ctx)
	cleanup := context.WithoutCancel(ctx)
	if _, err := a.vectors.Remove(cleanup, tenantKey, docID); err != nil {
		logger.Error("ingest_rollback_chunks_failed", "document", docID, "err", err)
	}
	if key != "" {
		if err := a.blobs.Delete(cleanup, key); err != nil {
			logger.Error("ingest_rollback_file_failed", "document", docID, "err", err)
		}
	}
}

func (a *App) spool(body io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(a.tempDir, "upload-*.pdf")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	size, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", 0, fmt.Errorf("%w: file too large", ErrInvalidInput)
		}
		return "", 0, fmt.Errorf("write temp file: %w", err)
	}
	if size == 0 {
		_ = os.Remove(f.Name())
		return "", 0, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	return f.Name(), size, nil
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".pdf")
}
