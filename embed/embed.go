// Package embed implements the embedding provider interface: text to
// dense vector, plus a bounded-concurrency, rate-limited batch embedder
// used by the ingestion orchestrator.
package embed

import (
	"context"
	"fmt"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag/providers"
)

// Provider embeds a single piece of text. It is satisfied by every
// registered rag/providers.Embedder (tagged-variant dispatch: construct
// the concrete implementation once at startup via NewProvider, never
// branch on provider name again afterward).
type Provider = providers.Embedder

// NewProvider constructs a Provider by name using the rag/providers
// registry (currently just "openai"). cfg is passed through verbatim to
// the registered factory.
func NewProvider(name string, cfg map[string]interface{}) (Provider, error) {
	factory, err := providers.GetEmbedderFactory(name)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return factory(cfg)
}

// embedResult wraps an embedding call with enough context to report which
// chunk failed without aborting the whole batch.
type embedResult struct {
	index int
	vec   []float64
	err   error
}

// EmbedTexts embeds each input text with the given provider. Order of
// the returned vectors matches the order of texts.
func EmbedTexts(ctx context.Context, provider Provider, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := provider.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed: text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// EmbedChunkError is an error carrying the index of the chunk that failed to
// embed, so a batch call can report partial failure without losing which
// item was at fault.
type EmbedChunkError struct {
	Index int
	Chunk domain.Chunk
	Err   error
}

func (e *EmbedChunkError) Error() string {
	return fmt.Sprintf("embed: chunk %d (%s): %v", e.Index, e.Chunk.ID, e.Err)
}

func (e *EmbedChunkError) Unwrap() error { return e.Err }
