// Package llm talks to hosted language models. Two providers are supported:
// any OpenAI-compatible chat/embeddings endpoint and Google Gemini.
package llm

import (
	"context"
	"fmt"

	"github.com/querychat/querychat/internal/config"
)

// Model sends an instruction prompt followed by the user's question and
// returns the model's plain-text reply.
type Model interface {
	Generate(ctx context.Context, instruction, question string) (string, error)
}

// Embedder turns texts into vectors of equal dimension, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Provider interface {
	Model
	Embedder
	Name() string
	Close() error
}

// New builds the provider selected by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			Temperature:    cfg.Temperature,
			Timeout:        cfg.Timeout,
		})
	case config.ProviderGemini:
		return NewGemini(ctx, GeminiConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			Temperature:    cfg.Temperature,
			Timeout:        cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
