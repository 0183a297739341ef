package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
	"gonum.org/v1/gonum/floats"
)

// MemoryBackend is an in-process vector store: a map guarded by a
// RWMutex plus linear-scan search. It is the fast default used by tests
// and by any deployment that doesn't need the chunks to survive a
// restart.
//
// Search also keeps a parallel BM25 index, so the same text that drives
// dense similarity can also be scored by keyword overlap; the two
// rankings are fused with Reciprocal Rank Fusion in SearchHybrid, which
// Store.SearchByText calls whenever the configured backend supports it
// (see vectorstore.HybridBackend) — this is the path the hybrid
// retrieval state machine's PDF retrieval task exercises on every turn.
type MemoryBackend struct {
	mu     sync.RWMutex
	chunks map[string]domain.Chunk
	bm25   *rag.BM25Index
	rrf    *rag.RRFReranker
	ids    map[string]int64 // chunk.ID -> bm25 numeric id
	nextID int64
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		chunks: make(map[string]domain.Chunk),
		bm25:   rag.NewBM25Index(),
		rrf:    rag.NewRRFReranker(60),
		ids:    make(map[string]int64),
	}
}

// Add upserts chunks by id: a chunk whose id already exists is
// overwritten in place (Ack.Updated), a new id is inserted
// (Ack.Inserted). This is what makes ingesting the same document twice
// a no-op on size().
func (m *MemoryBackend) Add(ctx context.Context, chunks []domain.Chunk) (domain.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ack domain.Ack
	for _, c := range chunks {
		numericID, exists := m.ids[c.ID]
		if !exists {
			numericID = m.nextID
			m.nextID++
			m.ids[c.ID] = numericID
			ack.Inserted++
		} else {
			ack.Updated++
			_ = m.bm25.Remove(ctx, numericID)
		}
		m.chunks[c.ID] = c
		_ = m.bm25.Add(ctx, numericID, c.Text, map[string]interface{}{"chunk_id": c.ID})
	}
	return ack, nil
}

func (m *MemoryBackend) Search(ctx context.Context, vector []float64, k int, filter Filter) ([]domain.RetrievedChunk, error) {
	k = clampTopK(k)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []domain.RetrievedChunk
	for _, c := range m.chunks {
		if !filter.matches(c.Metadata) {
			continue
		}
		if len(c.Embedding) == 0 || len(vector) == 0 {
			continue
		}
		score := normalizedCosine(vector, c.Embedding)
		results = append(results, domain.RetrievedChunk{Chunk: c, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SearchHybrid fuses dense vector similarity with BM25 keyword scoring
// via Reciprocal Rank Fusion. It implements HybridBackend, the
// enrichment beyond the plain Backend interface contract that
// Store.SearchByText prefers whenever a text query is available
// alongside its embedding — which is always true for the agent's PDF
// retrieval task.
func (m *MemoryBackend) SearchHybrid(ctx context.Context, queryText string, vector []float64, k int, filter Filter) ([]domain.RetrievedChunk, error) {
	k = clampTopK(k)
	m.mu.RLock()
	defer m.mu.RUnlock()

	dense := make([]rag.SearchResult, 0, len(m.chunks))
	for id, c := range m.chunks {
		if !filter.matches(c.Metadata) || len(c.Embedding) == 0 || len(vector) == 0 {
			continue
		}
		dense = append(dense, rag.SearchResult{ID: m.ids[id], Score: normalizedCosine(vector, c.Embedding)})
	}
	sort.Slice(dense, func(i, j int) bool { return dense[i].Score > dense[j].Score })

	sparse, err := m.bm25.Search(ctx, queryText, len(m.chunks))
	if err != nil {
		sparse = nil
	}

	fused, err := m.rrf.Rerank(ctx, queryText, dense, sparse, 0.7, 0.3)
	if err != nil {
		fused = dense
	}

	byID := make(map[int64]string, len(m.ids))
	for chunkID, numericID := range m.ids {
		byID[numericID] = chunkID
	}

	var out []domain.RetrievedChunk
	for _, r := range fused {
		chunkID, ok := byID[r.ID]
		if !ok {
			continue
		}
		c, ok := m.chunks[chunkID]
		if !ok {
			continue
		}
		out = append(out, domain.RetrievedChunk{Chunk: c, Score: r.Score})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (m *MemoryBackend) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *MemoryBackend) DeleteAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.chunks)
	m.chunks = make(map[string]domain.Chunk)
	m.bm25 = rag.NewBM25Index()
	m.ids = make(map[string]int64)
	m.nextID = 0
	return n, nil
}

// normalizedCosine returns cosine similarity rescaled from [-1,1] to
// [0,1], higher is better, so callers never need to know which metric a
// backend natively speaks.
func normalizedCosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	a, b = a[:n], b[:n]

	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	cos := floats.Dot(a, b) / (na * nb)
	return (cos + 1) / 2
}
