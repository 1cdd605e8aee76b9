package rag

import (
	"context"
	"fmt"
	"strings"

	"docbot/pkg/ai"
	"docbot/pkg/vectorstore"
)

const (
	// DefaultTopK is the number of chunks retrieved when the caller passes zero.
	DefaultTopK = 5
	// ContextDelimiter separates retrieved chunks in the assembled context.
	ContextDelimiter = "\n\n"
)

// Searchable is a collection that can be counted and queried by vector.
type Searchable interface {
	Count(ctx context.Context) (int, error)
	Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error)
}

// Retriever turns a question into a context string from a collection.
type Retriever struct {
	embedder ai.Embedder
	topK     int
}

// NewRetriever builds a Retriever. topK <= 0 selects DefaultTopK.
func NewRetriever(embedder ai.Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, topK: topK}
}

// Retrieve returns the texts of the nearest chunks joined by ContextDelimiter.
// An empty collection yields an empty context without embedding the query.
func (r *Retriever) Retrieve(ctx context.Context, collection Searchable, query string, topK int) (string, error) {
	matches, err := r.Search(ctx, collection, query, topK)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Content)
	}
	return strings.Join(texts, ContextDelimiter), nil
}

// Search returns the nearest chunks in the order the store ranked them.
func (r *Retriever) Search(ctx context.Context, collection Searchable, query string, topK int) ([]vectorstore.Match, error) {
	if topK <= 0 {
		topK = r.topK
	}
	size, err := collection.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count collection: %w", err)
	}
	if size == 0 {
		return nil, nil
	}
	vector, err := r.embedder.EmbedText(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := collection.Query(ctx, vector, min(topK, size))
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	return matches, nil
}
