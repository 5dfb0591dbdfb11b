// Package embedding turns content text into vectors for the HNSW index.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pressbridge/pressbridge/internal/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// maxInputRunes caps the text sent to the provider. CMS bodies routinely
// exceed model context windows, and the head of a document carries most of
// the retrieval signal.
const maxInputRunes = 8000

// Embedder generates fixed-dimension vectors through a langchaingo backend.
type Embedder struct {
	backend   embeddings.Embedder
	modelName string
	dimension int
	log       *slog.Logger
}

// NewEmbedder builds the provider named by the configuration.
func NewEmbedder(cfg config.Config, log *slog.Logger) (*Embedder, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		backend:   backend,
		modelName: cfg.EmbedModel,
		dimension: cfg.EmbedDimension,
		log:       log,
	}, nil
}

func newBackend(cfg config.Config) (embeddings.Embedder, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return embeddings.NewEmbedder(llm)

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but no API key set")
		}
		llm, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return embeddings.NewEmbedder(llm)

	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbedProvider)
	}
}

// Embed produces the vector for one piece of content text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncate(text)

	start := time.Now()
	vectors, err := e.backend.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.log.Warn("embedding failed",
			"model", e.modelName,
			"text_len", len(text),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed: provider returned %d vectors, want 1", len(vectors))
	}
	if got := len(vectors[0]); got != e.dimension {
		return nil, fmt.Errorf("embed: dimension %d from %s, index expects %d", got, e.modelName, e.dimension)
	}

	e.log.Debug("embedded",
		"model", e.modelName,
		"text_len", len(text),
		"duration_ms", time.Since(start).Milliseconds())
	return vectors[0], nil
}

// Model reports the configured model name.
func (e *Embedder) Model() string { return e.modelName }

// Dimension reports the vector width the store's index is built for.
func (e *Embedder) Dimension() int { return e.dimension }

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= maxInputRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxInputRunes]))
}
