package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"docbot/pkg/domain"
	"docbot/pkg/store"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const scanBatchSize = 200

var metadataKeyPattern = regexp.MustCompile(`^[a-z_]+$`)

// CollectionModel is the persisted collection record.
type CollectionModel struct {
	Name       string    `gorm:"primaryKey"`
	TenantKey  string    `gorm:"not null;index"`
	EmbedderID string    `gorm:"not null"`
	Dimension  int       `gorm:"not null"`
	Status     string    `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (CollectionModel) TableName() string { return "vector_collections" }

// ChunkModel stores one embedded chunk. The vector column has no fixed
// dimension so collections built by different embedders can coexist.
type ChunkModel struct {
	Collection string          `gorm:"primaryKey"`
	ID         string          `gorm:"primaryKey"`
	Content    string          `gorm:"type:text;not null"`
	Metadata   datatypes.JSON  `gorm:"type:jsonb"`
	Embedding  pgvector.Vector `gorm:"type:vector;not null"`
	CreatedAt  time.Time       `gorm:"not null"`
}

func (ChunkModel) TableName() string { return "vector_chunks" }

// PgvectorBackend implements Backend on Postgres with the pgvector extension.
type PgvectorBackend struct {
	db *gorm.DB
}

// NewPgvectorBackend wraps an open DB. Call Migrate before first use.
func NewPgvectorBackend(db *gorm.DB) *PgvectorBackend {
	return &PgvectorBackend{db: db}
}

// Migrate enables pgvector and creates the collection tables.
func (p *PgvectorBackend) Migrate() error {
	return store.WithMigrationLock(p.db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&CollectionModel{}, &ChunkModel{}); err != nil {
			return fmt.Errorf("auto migrate vectors: %w", err)
		}
		if err := tx.Exec(`CREATE INDEX IF NOT EXISTS vector_chunks_document_idx
			ON vector_chunks (collection, (metadata->>'document_id'))`).Error; err != nil {
			return fmt.Errorf("create document index: %w", err)
		}
		return nil
	})
}

func (p *PgvectorBackend) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	var models []CollectionModel
	if err := p.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Collection, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Collection{
			Name:       m.Name,
			TenantKey:  m.TenantKey,
			EmbedderID: m.EmbedderID,
			Dimension:  m.Dimension,
			Status:     domain.CollectionStatus(m.Status),
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}

func (p *PgvectorBackend) CreateCollection(ctx context.Context, c domain.Collection) error {
	model := CollectionModel{
		Name:       c.Name,
		TenantKey:  c.TenantKey,
		EmbedderID: c.EmbedderID,
		Dimension:  c.Dimension,
		Status:     string(c.Status),
		CreatedAt:  c.CreatedAt,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"status"}),
	}).Create(&model).Error
}

func (p *PgvectorBackend) SetCollectionStatus(ctx context.Context, name string, status domain.CollectionStatus) error {
	res := p.db.WithContext(ctx).Model(&CollectionModel{}).Where("name = ?", name).Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCollectionNotFound
	}
	return nil
}

func (p *PgvectorBackend) DeleteCollection(ctx context.Context, name string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChunkModel{}, "collection = ?", name).Error; err != nil {
			return err
		}
		return tx.Delete(&CollectionModel{}, "name = ?", name).Error
	})
}

func (p *PgvectorBackend) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]ChunkModel, 0, len(records))
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		models = append(models, ChunkModel{
			Collection: collection,
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   datatypes.JSON(meta),
			Embedding:  pgvector.NewVector(r.Embedding),
			CreatedAt:  now,
		})
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "metadata", "embedding"}),
	}).Create(&models).Error
}

func (p *PgvectorBackend) DeleteWhere(ctx context.Context, collection, key, value string) (int, error) {
	if !metadataKeyPattern.MatchString(key) {
		return 0, fmt.Errorf("invalid metadata key %q", key)
	}
	res := p.db.WithContext(ctx).
		Where("collection = ?", collection).
		Where(fmt.Sprintf("metadata->>'%s' = ?", key), value).
		Delete(&ChunkModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (p *PgvectorBackend) Count(ctx context.Context, collection string) (int, error) {
	var count int64
	if err := p.db.WithContext(ctx).Model(&ChunkModel{}).Where("collection = ?", collection).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

type chunkMatch struct {
	ID       string
	Content  string
	Metadata datatypes.JSON
	Distance float64
}

func (p *PgvectorBackend) Query(ctx context.Context, collection string, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(vector)
	var rows []chunkMatch
	if err := p.db.WithContext(ctx).
		Model(&ChunkModel{}).
		Select("id, content, metadata, embedding <=> ? AS distance", vec).
		Where("collection = ?", collection).
		Order("distance ASC").
		Order("created_at ASC").
		Limit(k).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(rows))
	for _, row := range rows {
		meta, err := decodeMetadata(row.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, Match{ID: row.ID, Content: row.Content, Metadata: meta, Distance: row.Distance})
	}
	return out, nil
}

func (p *PgvectorBackend) Scan(ctx context.Context, collection string, fn func(Record) error) error {
	var batch []ChunkModel
	var fnErr error
	res := p.db.WithContext(ctx).
		Select("collection", "id", "content", "metadata", "created_at").
		Where("collection = ?", collection).
		FindInBatches(&batch, scanBatchSize, func(tx *gorm.DB, _ int) error {
			for _, m := range batch {
				meta, err := decodeMetadata(m.Metadata)
				if err != nil {
					fnErr = err
					return err
				}
				if err := fn(Record{ID: m.ID, Content: m.Content, Metadata: meta}); err != nil {
					fnErr = err
					return err
				}
			}
			return nil
		})
	if fnErr != nil {
		return fnErr
	}
	return res.Error
}

func decodeMetadata(raw datatypes.JSON) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

