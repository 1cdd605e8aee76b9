package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docbot/internal/readiness"
	"docbot/pkg/ai"
	"docbot/pkg/chunker"
	"docbot/pkg/rag"
	"docbot/pkg/storage"
	"docbot/pkg/store"
	"docbot/pkg/vectorstore"
	"docbot/services/docbot/internal/app"
	"docbot/services/docbot/internal/config"
	"gorm.io/gorm"
)

// warmEmbedder is an embedder that can name itself and prepare its model.
type warmEmbedder interface {
	ai.Embedder
	ai.Identified
	Warm(ctx context.Context) error
}

// components holds the concrete implementations chosen by configuration.
type components struct {
	db      *gorm.DB
	store   store.Store
	vectors vectorstore.Backend
	closers []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// openStorage connects to Postgres when a database URL is configured and
// falls back to in-memory stores otherwise.
func openStorage(cfg config.FileConfig, logger *slog.Logger) (*components, error) {
	c := &components{}
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store and vectors")
		c.store = store.NewMemoryStore()
		c.vectors = vectorstore.NewMemoryBackend()
		return c, nil
	}
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c.db = db
	c.closers = append(c.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	c.store = store.NewGormStore(db)
	c.vectors = vectorstore.NewPgvectorBackend(db)
	return c, nil
}

// migrate creates the relational and vector tables.
func (c *components) migrate() error {
	if c.db == nil {
		return nil
	}
	gs, ok := c.store.(*store.GormStore)
	if !ok {
		return errors.New("unexpected store implementation")
	}
	if err := gs.Migrate(); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	pg, ok := c.vectors.(*vectorstore.PgvectorBackend)
	if !ok {
		return errors.New("unexpected vector backend")
	}
	if err := pg.Migrate(); err != nil {
		return fmt.Errorf("migrate vectors: %w", err)
	}
	return nil
}

func newEmbedder(cfg config.FileConfig) warmEmbedder {
	if cfg.EmbeddingProvider == "openai" {
		return ai.NewOpenAICompatEmbedder(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
	}
	return ai.NewOllamaEmbedder(ai.NewOllamaClient(cfg.OllamaURL), cfg.EmbeddingModel, cfg.EmbeddingDim)
}

func newGenerator(cfg config.FileConfig) (ai.TextGenerator, bool) {
	opts := []ai.GeneratorOption{ai.WithTemperature(cfg.LLMTemperature), ai.WithMaxTokens(cfg.LLMMaxTokens)}
	if cfg.LLMProvider == "ollama" {
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.OllamaURL), cfg.LLMModel, opts...), true
	}
	gen := ai.NewOpenAICompatGenerator(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, opts...)
	return gen, gen.HasAPIKey()
}

func newManager(cfg config.FileConfig, backend vectorstore.Backend, emb warmEmbedder, logger *slog.Logger) (*vectorstore.Manager, error) {
	return vectorstore.NewManager(vectorstore.Config{
		Backend:     backend,
		Embedder:    emb,
		EmbedderID:  emb.Identity(),
		Dimension:   cfg.EmbeddingDim,
		Conflict:    vectorstore.ConflictMode(cfg.CollectionConflict),
		BatchSize:   cfg.EmbeddingBatchSize,
		Concurrency: cfg.EmbeddingConcurrency,
		Logger:      logger,
	})
}

func newBlobStore(cfg config.FileConfig) (storage.ObjectStore, error) {
	if cfg.StorageBackend == "minio" {
		blobs, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		return blobs, nil
	}
	blobs, err := storage.NewFileStore(cfg.StorageDir)
	if err != nil {
		return nil, err
	}
	return blobs, nil
}

func newSessions(cfg config.FileConfig, c *components) (*store.JWTSessionStore, error) {
	var revoker store.TokenRevoker
	if cfg.RedisAddr != "" {
		redisRevoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		c.closers = append(c.closers, func() { _ = redisRevoker.Close() })
		revoker = redisRevoker
	} else {
		revoker = store.NewMemoryTokenRevoker()
	}
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	return store.NewJWTSessionStore(cfg.SessionSecret, ttl, revoker, store.JWTOptions{})
}

// service is the assembled application with its warm-up.
type service struct {
	app        *app.App
	gate       *readiness.Gate
	sessionTTL time.Duration
	warm       func(context.Context) error
}

// newService assembles the application core and the readiness gate. The gate
// opens once the embedding model is warm and persisted collections are loaded.
func newService(cfg config.FileConfig, c *components, logger *slog.Logger) (*service, error) {
	emb := newEmbedder(cfg)
	vectors, err := newManager(cfg, c.vectors, emb, logger)
	if err != nil {
		return nil, fmt.Errorf("init vector manager: %w", err)
	}
	split, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	blobs, err := newBlobStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}
	sessions, err := newSessions(cfg, c)
	if err != nil {
		return nil, fmt.Errorf("init sessions: %w", err)
	}
	gen, keyConfigured := newGenerator(cfg)
	if !keyConfigured {
		logger.Warn("LLM API key not configured; chat answers will fail", "base_url", cfg.LLMBaseURL)
	}
	gate := readiness.NewGate("embedding model " + cfg.EmbeddingModel)
	appCore, err := app.New(app.Config{
		Store:               c.store,
		Sessions:            sessions,
		Vectors:             vectors,
		Retriever:           rag.NewRetriever(emb, cfg.TopK),
		Answerer:            rag.NewAnswerer(gen),
		Chunker:             split,
		Blobs:               blobs,
		Gate:                gate,
		ReadinessTimeout:    time.Duration(cfg.ReadinessTimeoutSeconds) * time.Second,
		TopK:                cfg.TopK,
		EmbeddingModel:      cfg.EmbeddingModel,
		LLMModel:            cfg.LLMModel,
		LLMAPIKeyConfigured: keyConfigured,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	return &service{
		app:        appCore,
		gate:       gate,
		sessionTTL: sessions.TTL(),
		warm:       warmUp(emb, vectors, logger),
	}, nil
}

// warmUp prepares the embedding model and reloads persisted collections.
func warmUp(emb warmEmbedder, vectors *vectorstore.Manager, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		if err := emb.Warm(ctx); err != nil {
			logger.Error("embedding_warmup_failed", "identity", emb.Identity(), "err", err)
			return err
		}
		if _, err := vectors.ReloadAll(ctx); err != nil {
			logger.Error("collection_reload_failed", "err", err)
			return err
		}
		logger.Info("embedding_ready", "identity", emb.Identity(), "duration_ms", time.Since(start).Milliseconds())
		return nil
	}
}
