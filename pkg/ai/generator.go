package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GenerationOptions are sampling parameters shared by the generators.
type GenerationOptions struct {
	Temperature *float64
	MaxTokens   int
}

// GeneratorOption configures a generator.
type GeneratorOption func(*GenerationOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GeneratorOption {
	return func(o *GenerationOptions) { o.Temperature = &t }
}

// WithMaxTokens caps the completion length. Zero leaves the provider default.
func WithMaxTokens(n int) GeneratorOption {
	return func(o *GenerationOptions) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

func applyOptions(opts []GeneratorOption) GenerationOptions {
	var o GenerationOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
