package vectorstore

import (
	"context"

	"docbot/pkg/domain"
)

// Record is one embedded chunk as stored in a collection.
type Record struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Match is a query result ordered by ascending cosine distance.
type Match struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

// Backend persists collection records and their chunk vectors.
type Backend interface {
	ListCollections(ctx context.Context) ([]domain.Collection, error)
	CreateCollection(ctx context.Context, c domain.Collection) error
	SetCollectionStatus(ctx context.Context, name string, status domain.CollectionStatus) error
	// DeleteCollection removes the collection record and all of its chunks.
	DeleteCollection(ctx context.Context, name string) error

	Upsert(ctx context.Context, collection string, records []Record) error
	// DeleteWhere removes chunks whose metadata key equals value and returns how many went.
	DeleteWhere(ctx context.Context, collection, key, value string) (int, error)
	Count(ctx context.Context, collection string) (int, error)
	Query(ctx context.Context, collection string, vector []float32, k int) ([]Match, error)
	// Scan visits every chunk of a collection without embeddings.
	Scan(ctx context.Context, collection string, fn func(Record) error) error
}
