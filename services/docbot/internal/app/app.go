package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"docbot/internal/readiness"
	"docbot/pkg/chunker"
	"docbot/pkg/rag"
	"docbot/pkg/storage"
	"docbot/pkg/store"
	"docbot/pkg/vectorstore"
)

const defaultReadinessTimeout = 30 * time.Second

// Config holds the collaborators of the application core. Every dependency is
// passed in; the package keeps no global state.
type Config struct {
	Store     store.Store
	Sessions  store.SessionStore
	Vectors   *vectorstore.Manager
	Retriever *rag.Retriever
	Answerer  *rag.Answerer
	Chunker   *chunker.Chunker
	Blobs     storage.ObjectStore
	// Gate reports whether the embedding model is warm.
	Gate             *readiness.Gate
	ReadinessTimeout time.Duration
	TopK             int

	EmbeddingModel      string
	LLMModel            string
	LLMAPIKeyConfigured bool
	// TempDir holds uploads while they are parsed. Empty uses os.TempDir.
	TempDir string
	Logger  *slog.Logger
}

// App implements the docbot use cases.
type App struct {
	store            store.Store
	sessions         store.SessionStore
	vectors          *vectorstore.Manager
	retriever        *rag.Retriever
	answerer         *rag.Answerer
	chunker          *chunker.Chunker
	blobs            storage.ObjectStore
	gate             *readiness.Gate
	readinessTimeout time.Duration
	topK             int

	embeddingModel      string
	llmModel            string
	llmAPIKeyConfigured bool
	tempDir             string
	logger              *slog.Logger
	now                 func() time.Time
}

// New validates cfg and constructs the application.
func New(cfg Config) (*App, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("store required")
	case cfg.Sessions == nil:
		return nil, fmt.Errorf("session store required")
	case cfg.Vectors == nil:
		return nil, fmt.Errorf("vector manager required")
	case cfg.Retriever == nil:
		return nil, fmt.Errorf("retriever required")
	case cfg.Answerer == nil:
		return nil, fmt.Errorf("answerer required")
	case cfg.Blobs == nil:
		return nil, fmt.Errorf("blob storage required")
	case cfg.Gate == nil:
		return nil, fmt.Errorf("readiness gate required")
	}
	chunks := cfg.Chunker
	if chunks == nil {
		chunks = chunker.Default()
	}
	timeout := cfg.ReadinessTimeout
	if timeout <= 0 {
		timeout = defaultReadinessTimeout
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		store:               cfg.Store,
		sessions:            cfg.Sessions,
		vectors:             cfg.Vectors,
		retriever:           cfg.Retriever,
		answerer:            cfg.Answerer,
		chunker:             chunks,
		blobs:               cfg.Blobs,
		gate:                cfg.Gate,
		readinessTimeout:    timeout,
		topK:                cfg.TopK,
		embeddingModel:      cfg.EmbeddingModel,
		llmModel:            cfg.LLMModel,
		llmAPIKeyConfigured: cfg.LLMAPIKeyConfigured,
		tempDir:             tempDir,
		logger:              logger,
		now:                 func() time.Time { return time.Now().UTC() },
	}, nil
}

// Health summarizes readiness for the health endpoint.
type Health struct {
	Status              string `json:"status"`
	EmbeddingReady      bool   `json:"embeddingReady"`
	LLMAPIKeyConfigured bool   `json:"llmApiKeyConfigured"`
	EmbeddingModel      string `json:"embeddingModel"`
	LLMModel            string `json:"llmModel"`
}

// Health reports "ok" once embeddings are warm and an LLM key is set.
func (a *App) Health() Health {
	ready := a.gate.Ready()
	status := "degraded"
	if ready && a.llmAPIKeyConfigured {
		status = "ok"
	}
	return Health{
		Status:              status,
		EmbeddingReady:      ready,
		LLMAPIKeyConfigured: a.llmAPIKeyConfigured,
		EmbeddingModel:      a.embeddingModel,
		LLMModel:            a.llmModel,
	}
}

// waitReady blocks until embeddings are usable. Every failure matches readiness.ErrNotReady.
func (a *App) waitReady(ctx context.Context) error {
	err := a.gate.Wait(ctx, a.readinessTimeout)
	if err == nil || errors.Is(err, readiness.ErrNotReady) {
		return err
	}
	return fmt.Errorf("%w: %w", readiness.ErrNotReady, err)
}
