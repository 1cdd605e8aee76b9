package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"docbot/pkg/ai"
	"docbot/pkg/chunker"
	"docbot/pkg/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ConflictMode decides what happens when a tenant's active collection was
// built by a different embedding function.
type ConflictMode string

const (
	ConflictMigrate ConflictMode = "migrate"
	ConflictReject  ConflictMode = "reject"
)

const (
	defaultBatchSize   = 16
	defaultConcurrency = 2
)

var chunkNamespace = uuid.MustParse("6f1c3c8e-5a4b-4f7e-9d1a-2b8c0e4d7a13")

// Config wires a Manager.
type Config struct {
	Backend    Backend
	Embedder   ai.Embedder
	EmbedderID string
	Dimension  int
	Conflict   ConflictMode
	// BatchSize and Concurrency bound embedding calls during indexing.
	BatchSize   int
	Concurrency int
	Logger      *slog.Logger
}

// Manager owns the lifecycle of one active vector collection per tenant.
type Manager struct {
	backend     Backend
	embedder    ai.Embedder
	embedderID  string
	dimension   int
	conflict    ConflictMode
	batchSize   int
	concurrency int
	logger      *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	handles map[string]*Collection // key: tenant
}

// Collection is a handle to a tenant's active collection.
type Collection struct {
	info    domain.Collection
	backend Backend
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("vector backend required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	embedderID := strings.TrimSpace(cfg.EmbedderID)
	if embedderID == "" {
		if ident, ok := cfg.Embedder.(ai.Identified); ok {
			embedderID = ident.Identity()
		}
	}
	if embedderID == "" {
		return nil, fmt.Errorf("embedder identity required")
	}
	conflict := cfg.Conflict
	if conflict == "" {
		conflict = ConflictMigrate
	}
	if conflict != ConflictMigrate && conflict != ConflictReject {
		return nil, fmt.Errorf("unknown collection conflict mode %q", conflict)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:     cfg.Backend,
		embedder:    cfg.Embedder,
		embedderID:  embedderID,
		dimension:   cfg.Dimension,
		conflict:    conflict,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      logger,
		handles:     make(map[string]*Collection),
	}, nil
}

// CollectionName derives the collection name from the tenant key and the
// embedder identity.
func CollectionName(tenantKey, embedderID string) string {
	t := sha256.Sum256([]byte(tenantKey))
	e := sha256.Sum256([]byte(embedderID))
	return "c_" + hex.EncodeToString(t[:])[:16] + "_" + hex.EncodeToString(e[:])[:12]
}

// ChunkID is the deterministic id of chunk index of document in tenant.
func ChunkID(tenantKey, documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(tenantKey+"\x00"+documentID+"\x00"+strconv.Itoa(index))).String()
}

// EmbedderID returns the identity vectors in managed collections are built with.
func (m *Manager) EmbedderID() string { return m.embedderID }

// GetOrCreate returns the tenant's active collection, creating or migrating it as needed.
func (m *Manager) GetOrCreate(ctx context.Context, tenantKey string) (*Collection, error) {
	tenantKey = strings.TrimSpace(tenantKey)
	if tenantKey == "" {
		return nil, fmt.Errorf("tenant key required")
	}
	m.mu.RLock()
	h, ok := m.handles[tenantKey]
	m.mu.RUnlock()
	if ok {
		return h, nil
	}
	// The shared resolve must outlive any single caller; each caller still
	// stops waiting when its own context ends.
	resolveCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(tenantKey, func() (any, error) {
		m.mu.RLock()
		h, ok := m.handles[tenantKey]
		m.mu.RUnlock()
		if ok {
			return h, nil
		}
		h, err := m.resolve(resolveCtx, tenantKey)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.handles[tenantKey] = h
		m.mu.Unlock()
		return h, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Collection), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the tenant's active collection without creating one. It
// returns ErrCollectionNotFound when the tenant has no active collection. An
// active collection built by another embedder is migrated or rejected as in
// GetOrCreate.
func (m *Manager) Get(ctx context.Context, tenantKey string) (*Collection, error) {
	tenantKey = strings.TrimSpace(tenantKey)
	if tenantKey == "" {
		return nil, fmt.Errorf("tenant key required")
	}
	m.mu.RLock()
	h, ok := m.handles[tenantKey]
	m.mu.RUnlock()
	if ok {
		return h, nil
	}
	all, err := m.backend.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	for _, c := range all {
		if c.TenantKey == tenantKey && c.Status == domain.CollectionActive {
			return m.GetOrCreate(ctx, tenantKey)
		}
	}
	return nil, fmt.Errorf("%w: tenant %s", ErrCollectionNotFound, tenantKey)
}

func (m *Manager) resolve(ctx context.Context, tenantKey string) (*Collection, error) {
	all, err := m.backend.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	name := CollectionName(tenantKey, m.embedderID)
	var stale []domain.Collection
	for _, c := range all {
		if c.TenantKey != tenantKey || c.Status != domain.CollectionActive {
			continue
		}
		if c.EmbedderID == m.embedderID {
			return m.handle(c), nil
		}
		stale = append(stale, c)
	}
	if len(stale) > 0 && m.conflict == ConflictReject {
		return nil, fmt.Errorf("%w: tenant %s has %s, configured %s", ErrEmbedderConflict, tenantKey, stale[0].EmbedderID, m.embedderID)
	}
	for _, c := range all {
		// A retired collection with this name holds vectors from an earlier
		// round with the same embedder; they no longer reflect the documents.
		if c.Name == name {
			if err := m.backend.DeleteCollection(ctx, name); err != nil {
				return nil, fmt.Errorf("clear retired collection: %w", err)
			}
		}
	}
	info := domain.Collection{
		Name:       name,
		TenantKey:  tenantKey,
		EmbedderID: m.embedderID,
		Dimension:  m.dimension,
		Status:     domain.CollectionActive,
		CreatedAt:  time.Now().UTC(),
	}
	if len(stale) == 0 {
		if err := m.backend.CreateCollection(ctx, info); err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
		m.logger.Info("collection_created", "tenant", tenantKey, "collection", name, "embedder", m.embedderID)
		return m.handle(info), nil
	}
	return m.migrate(ctx, info, stale)
}

// migrate re-embeds the chunk texts of the stale collections into info and
// retires them. The new collection is only recorded once all chunks are copied.
func (m *Manager) migrate(ctx context.Context, info domain.Collection, stale []domain.Collection) (*Collection, error) {
	var records []Record
	for _, old := range stale {
		if err := m.backend.Scan(ctx, old.Name, func(r Record) error {
			records = append(records, r)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("scan collection %s: %w", old.Name, err)
		}
	}
	if err := m.embedAndUpsert(ctx, info.Name, records); err != nil {
		_ = m.backend.DeleteCollection(context.Background(), info.Name)
		return nil, fmt.Errorf("migrate collection: %w", err)
	}
	if err := m.backend.CreateCollection(ctx, info); err != nil {
		_ = m.backend.DeleteCollection(context.Background(), info.Name)
		return nil, fmt.Errorf("create collection: %w", err)
	}
	for _, old := range stale {
		if err := m.backend.SetCollectionStatus(ctx, old.Name, domain.CollectionRetired); err != nil {
			return nil, fmt.Errorf("retire collection %s: %w", old.Name, err)
		}
		m.logger.Warn("collection_migrated",
			"tenant", info.TenantKey,
			"from", old.Name,
			"fromEmbedder", old.EmbedderID,
			"to", info.Name,
			"toEmbedder", info.EmbedderID,
			"chunks", len(records),
		)
	}
	return m.handle(info), nil
}

func (m *Manager) handle(info domain.Collection) *Collection {
	return &Collection{info: info, backend: m.backend}
}

// Index embeds chunks of one document and stores them in the tenant's collection.
func (m *Manager) Index(ctx context.Context, tenantKey, documentID, sourceFilename string, chunks []chunker.Chunk) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, fmt.Errorf("document id required")
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	c, err := m.GetOrCreate(ctx, tenantKey)
	if err != nil {
		return 0, err
	}
	records := make([]Record, 0, len(chunks))
	for _, ch := range chunks {
		records = append(records, Record{
			ID:      ChunkID(tenantKey, documentID, ch.Index),
			Content: ch.Text,
			Metadata: map[string]string{
				domain.MetaTenant:         tenantKey,
				domain.MetaDocumentID:     documentID,
				domain.MetaChunkIndex:     strconv.Itoa(ch.Index),
				domain.MetaSourceFilename: sourceFilename,
			},
		})
	}
	if err := m.embedAndUpsert(ctx, c.Name(), records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (m *Manager) embedAndUpsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i := 0; i < len(records); i += m.batchSize {
		batch := records[i:min(i+m.batchSize, len(records))]
		g.Go(func() error {
			return m.processBatch(gctx, collection, batch)
		})
	}
	return g.Wait()
}

func (m *Manager) processBatch(ctx context.Context, collection string, batch []Record) error {
	texts := make([]string, 0, len(batch))
	for _, r := range batch {
		texts = append(texts, r.Content)
	}
	var embeddings [][]float32
	if embedder, ok := m.embedder.(ai.BatchEmbedder); ok && len(texts) > 1 {
		out, err := embedder.EmbedTexts(ctx, texts, ai.TaskRetrievalDocument)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		embeddings = out
	} else {
		embeddings = make([][]float32, 0, len(texts))
		for _, text := range texts {
			embedding, err := m.embedder.EmbedText(ctx, text, ai.TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("embed chunk: %w", err)
			}
			embeddings = append(embeddings, embedding)
		}
	}
	if len(embeddings) != len(batch) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(batch))
	}
	out := make([]Record, len(batch))
	for i, embedding := range embeddings {
		if m.dimension > 0 && len(embedding) != m.dimension {
			return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), m.dimension)
		}
		out[i] = batch[i]
		out[i].Embedding = embedding
	}
	if err := m.backend.Upsert(ctx, collection, out); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// Remove deletes every chunk of documentID from the tenant's collection.
func (m *Manager) Remove(ctx context.Context, tenantKey, documentID string) (int, error) {
	c, err := m.Get(ctx, tenantKey)
	if errors.Is(err, ErrCollectionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := m.backend.DeleteWhere(ctx, c.Name(), domain.MetaDocumentID, documentID)
	if err != nil {
		return 0, fmt.Errorf("remove document chunks: %w", err)
	}
	return n, nil
}

// Drop deletes every collection of the tenant, active or retired.
func (m *Manager) Drop(ctx context.Context, tenantKey string) error {
	m.mu.Lock()
	delete(m.handles, tenantKey)
	m.mu.Unlock()
	all, err := m.backend.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	var errs []error
	for _, c := range all {
		if c.TenantKey != tenantKey {
			continue
		}
		if err := m.backend.DeleteCollection(ctx, c.Name); err != nil {
			errs = append(errs, fmt.Errorf("drop %s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of chunks in the tenant's active collection, or 0
// when the tenant has none.
func (m *Manager) Count(ctx context.Context, tenantKey string) (int, error) {
	c, err := m.Get(ctx, tenantKey)
	if errors.Is(err, ErrCollectionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.Count(ctx)
}

// Collections lists every persisted collection record.
func (m *Manager) Collections(ctx context.Context) ([]domain.Collection, error) {
	return m.backend.ListCollections(ctx)
}

// ReloadAll re-establishes handles to persisted active collections built by
// the configured embedder. Individual failures are logged and skipped.
func (m *Manager) ReloadAll(ctx context.Context) (int, error) {
	all, err := m.backend.ListCollections(ctx)
	if err != nil {
		return 0, fmt.Errorf("list collections: %w", err)
	}
	tenants := make(map[string]struct{})
	for _, c := range all {
		if c.Status == domain.CollectionActive {
			tenants[c.TenantKey] = struct{}{}
		}
	}
	loaded := 0
	for tenant := range tenants {
		if _, err := m.GetOrCreate(ctx, tenant); err != nil {
			m.logger.Error("collection_reload_failed", "tenant", tenant, "err", err)
			continue
		}
		loaded++
	}
	m.logger.Info("collections_reloaded", "loaded", loaded, "total", len(all))
	return loaded, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.info.Name }

// Info returns the collection record.
func (c *Collection) Info() domain.Collection { return c.info }

// Count returns the number of stored chunks.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.backend.Count(ctx, c.info.Name)
}

// Query returns up to k chunks nearest to vector.
func (c *Collection) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	return c.backend.Query(ctx, c.info.Name, vector, k)
}
