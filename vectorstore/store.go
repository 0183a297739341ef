// Package vectorstore implements the vector repository: an
// idempotent-upsert, similarity-searchable, purgeable collection of
// chunks. Score is always normalized to [0,1], higher is better,
// regardless of the backend's native metric.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/embed"
)

// Filter narrows a search to chunks whose metadata matches. An empty
// Filter matches everything. Only Subject is currently honored by the
// in-process backends; it exists as an extension point for richer
// metadata filters.
type Filter struct {
	Subject string
}

func (f Filter) matches(meta domain.ChunkMetadata) bool {
	if f.Subject != "" && meta.Subject != f.Subject {
		return false
	}
	return true
}

// Backend is the contract a vector repository implementation must
// satisfy: add/search/size/delete_all. search_by_text is provided once
// by Store as sugar over Search, not per backend.
type Backend interface {
	Add(ctx context.Context, chunks []domain.Chunk) (domain.Ack, error)
	Search(ctx context.Context, vector []float64, k int, filter Filter) ([]domain.RetrievedChunk, error)
	Size(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) (int, error)
}

// HybridBackend is an optional capability a Backend may additionally
// implement: fusing dense vector similarity with keyword scoring when
// the caller has the query text alongside its embedding, rather than
// dense similarity alone. Store.SearchByText prefers this path whenever
// the configured backend supports it.
type HybridBackend interface {
	SearchHybrid(ctx context.Context, queryText string, vector []float64, k int, filter Filter) ([]domain.RetrievedChunk, error)
}

// Store is the vector repository façade: a Backend plus the embedding
// provider needed for SearchByText sugar. A single process-wide Store
// is shared across requests; its Backend implementations are
// responsible for the multi-reader/single-writer discipline concurrent
// ingestion and retrieval require.
type Store struct {
	backend  Backend
	provider embed.Provider
}

// NewStore builds a Store around backend, using provider only for the
// SearchByText convenience method.
func NewStore(backend Backend, provider embed.Provider) *Store {
	return &Store{backend: backend, provider: provider}
}

func (s *Store) Add(ctx context.Context, chunks []domain.Chunk) (domain.Ack, error) {
	return s.backend.Add(ctx, chunks)
}

func (s *Store) Search(ctx context.Context, vector []float64, k int, filter Filter) ([]domain.RetrievedChunk, error) {
	return s.backend.Search(ctx, vector, k, filter)
}

// SearchByText embeds text via the configured provider, then searches.
// When the backend implements HybridBackend, the query text rides
// along with the embedding so dense similarity and BM25 keyword
// scoring can be fused, rather than dropping the text after embedding.
func (s *Store) SearchByText(ctx context.Context, text string, k int, filter Filter) ([]domain.RetrievedChunk, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("vectorstore: no embedding provider configured")
	}
	vector, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	if hybrid, ok := s.backend.(HybridBackend); ok {
		return hybrid.SearchHybrid(ctx, text, vector, k, filter)
	}
	return s.backend.Search(ctx, vector, k, filter)
}

func (s *Store) Size(ctx context.Context) (int, error) {
	return s.backend.Size(ctx)
}

func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	return s.backend.DeleteAll(ctx)
}

// clampTopK keeps callers honest about non-positive k values.
func clampTopK(k int) int {
	if k <= 0 {
		return 4
	}
	return k
}
