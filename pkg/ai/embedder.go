package ai

import (
	"context"
	"fmt"
	"strings"
)

// Task types passed to embedders that distinguish documents from queries.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Embedder provides embeddings for text.
type Embedder interface {
	EmbedText(ctx context.Context, text, taskType string) ([]float32, error)
}

// BatchEmbedder optionally supports embedding multiple texts at once.
type BatchEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

// Identified is implemented by embedders that can name the embedding function
// they compute. Vectors from embedders with different identities are not comparable.
type Identified interface {
	Identity() string
}

// EmbedderIdentity formats the identity of an embedding function.
func EmbedderIdentity(provider, model string, dimensions int) string {
	return fmt.Sprintf("%s:%s:%d", strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(model), dimensions)
}

// OllamaEmbedder wraps Ollama embedding calls with a fixed model and dimension.
type OllamaEmbedder struct {
	client     *OllamaClient
	model      string
	dimensions int
}

// NewOllamaEmbedder builds an Ollama-based embedder.
func NewOllamaEmbedder(client *OllamaClient, model string, dimensions int) *OllamaEmbedder {
	return &OllamaEmbedder{client: client, model: model, dimensions: dimensions}
}

// EmbedText returns embeddings for text using Ollama.
func (e *OllamaEmbedder) EmbedText(ctx context.Context, text, _ string) ([]float32, error) {
	return e.client.EmbedText(ctx, e.model, text, e.dimensions)
}

// EmbedTexts returns embeddings for multiple texts using Ollama.
func (e *OllamaEmbedder) EmbedTexts(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	return e.client.EmbedTexts(ctx, e.model, texts, e.dimensions)
}

// Identity implements Identified.
func (e *OllamaEmbedder) Identity() string {
	return EmbedderIdentity("ollama", e.model, e.dimensions)
}

// Warm pulls the model if the Ollama server does not have it yet, then probes
// one embedding and checks its dimension.
func (e *OllamaEmbedder) Warm(ctx context.Context) error {
	if err := e.client.PullModel(ctx, e.model); err != nil {
		return fmt.Errorf("pull embedding model %s: %w", e.model, err)
	}
	return probeDimension(ctx, e, e.dimensions)
}

func probeDimension(ctx context.Context, e Embedder, want int) error {
	vec, err := e.EmbedText(ctx, "warm-up", TaskRetrievalQuery)
	if err != nil {
		return fmt.Errorf("probe embedding: %w", err)
	}
	if want > 0 && len(vec) != want {
		return fmt.Errorf("embedding dimension mismatch: model returned %d, configured %d", len(vec), want)
	}
	return nil
}
