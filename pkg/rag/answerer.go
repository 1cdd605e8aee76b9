package rag

import (
	"context"
	"fmt"
	"strings"

	"docbot/pkg/ai"
)

// NoRelevantInformation is answered when retrieval found nothing.
const NoRelevantInformation = "I couldn't find any relevant information in the uploaded documents to answer that question."

const systemPrompt = "You are a helpful assistant that answers questions using only the provided document context. " +
	"If the context does not contain the answer, say that you don't know. Keep answers concise."

// Answerer asks the language model to answer a question from retrieved context.
type Answerer struct {
	generator ai.TextGenerator
}

// NewAnswerer builds an Answerer on top of generator.
func NewAnswerer(generator ai.TextGenerator) *Answerer {
	return &Answerer{generator: generator}
}

// Answer returns NoRelevantInformation for an empty context without calling the
// model. Otherwise the model text is returned as is.
func (a *Answerer) Answer(ctx context.Context, contextText, question string) (string, error) {
	if strings.TrimSpace(contextText) == "" {
		return NoRelevantInformation, nil
	}
	out, err := a.generator.GenerateText(ctx, systemPrompt, BuildUserPrompt(contextText, question))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return out, nil
}

// BuildUserPrompt embeds context and question into the user message.
func BuildUserPrompt(contextText, question string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer based on the context above.", contextText, strings.TrimSpace(question))
}
