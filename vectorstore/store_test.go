package vectorstore

import (
	"context"
	"testing"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/stretchr/testify/require"
)

func sampleChunk(id string, embedding []float64) domain.Chunk {
	return domain.Chunk{
		ID:        id,
		Text:      "chunk " + id,
		Embedding: embedding,
		Metadata:  domain.ChunkMetadata{Subject: "mathematics"},
	}
}

func TestMemoryBackendIdempotentAdd(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	chunks := []domain.Chunk{sampleChunk("a", []float64{1, 0, 0}), sampleChunk("b", []float64{0, 1, 0})}

	ack, err := backend.Add(ctx, chunks)
	require.NoError(t, err)
	require.Equal(t, 2, ack.Inserted)
	require.Equal(t, 0, ack.Updated)

	ack, err = backend.Add(ctx, chunks)
	require.NoError(t, err)
	require.Equal(t, 0, ack.Inserted)
	require.Equal(t, 2, ack.Updated)

	n, err := backend.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestMemoryBackendSearchOrdersByScoreDescending(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	_, err := backend.Add(ctx, []domain.Chunk{
		sampleChunk("close", []float64{1, 0, 0}),
		sampleChunk("far", []float64{0, 1, 0}),
		sampleChunk("exact", []float64{1, 0, 0}),
	})
	require.NoError(t, err)

	results, err := backend.Search(ctx, []float64{1, 0, 0}, 3, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		require.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	require.Equal(t, "exact", results[0].ID)
}

func TestMemoryBackendSearchRespectsSubjectFilter(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	history := sampleChunk("hist", []float64{1, 0, 0})
	history.Metadata.Subject = "history"

	_, err := backend.Add(ctx, []domain.Chunk{sampleChunk("math", []float64{1, 0, 0}), history})
	require.NoError(t, err)

	results, err := backend.Search(ctx, []float64{1, 0, 0}, 5, Filter{Subject: "mathematics"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "math", results[0].ID)
}

func TestMemoryBackendDeleteAllResetsSizeAndSearch(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	_, err := backend.Add(ctx, []domain.Chunk{sampleChunk("a", []float64{1, 0, 0})})
	require.NoError(t, err)

	n, err := backend.DeleteAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	size, err := backend.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, size)

	results, err := backend.Search(ctx, []float64{1, 0, 0}, 5, Filter{})
	require.NoError(t, err)
	require.Empty(t, results)
}

type fakeQueryEmbedder struct{ vector []float64 }

func (f fakeQueryEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return f.vector, nil
}
func (f fakeQueryEmbedder) GetDimension() (int, error) { return len(f.vector), nil }

// spyHybridBackend records which of Search/SearchHybrid Store.SearchByText
// actually called, so the routing itself is asserted directly rather than
// inferred from a ranking outcome that both paths could produce.
type spyHybridBackend struct {
	calledHybrid bool
	calledDense  bool
}

func (s *spyHybridBackend) Add(ctx context.Context, chunks []domain.Chunk) (domain.Ack, error) {
	return domain.Ack{}, nil
}
func (s *spyHybridBackend) Search(ctx context.Context, vector []float64, k int, filter Filter) ([]domain.RetrievedChunk, error) {
	s.calledDense = true
	return nil, nil
}
func (s *spyHybridBackend) SearchHybrid(ctx context.Context, queryText string, vector []float64, k int, filter Filter) ([]domain.RetrievedChunk, error) {
	s.calledHybrid = true
	return []domain.RetrievedChunk{{Chunk: domain.Chunk{ID: "hybrid-hit"}, Score: 1}}, nil
}
func (s *spyHybridBackend) Size(ctx context.Context) (int, error)        { return 0, nil }
func (s *spyHybridBackend) DeleteAll(ctx context.Context) (int, error) { return 0, nil }

func TestStoreSearchByTextRoutesThroughHybridBackend(t *testing.T) {
	ctx := context.Background()
	backend := &spyHybridBackend{}
	store := NewStore(backend, fakeQueryEmbedder{vector: []float64{1, 0, 0}})

	results, err := store.SearchByText(ctx, "calculus derivatives", 2, Filter{})
	require.NoError(t, err)
	require.True(t, backend.calledHybrid, "expected SearchByText to prefer SearchHybrid for a HybridBackend")
	require.False(t, backend.calledDense, "expected SearchByText not to fall back to Search when hybrid is available")
	require.Len(t, results, 1)
	require.Equal(t, "hybrid-hit", results[0].ID)
}

func TestStoreSearchByTextFusesDenseAndSparseForMemoryBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	a := sampleChunk("a", []float64{1, 0, 0})
	a.Text = "derivatives and integrals in calculus"
	b := sampleChunk("b", []float64{0, 1, 0})
	b.Text = "a completely unrelated passage about history"

	_, err := backend.Add(ctx, []domain.Chunk{a, b})
	require.NoError(t, err)

	store := NewStore(backend, fakeQueryEmbedder{vector: []float64{1, 0, 0}})

	results, err := store.SearchByText(ctx, "calculus derivatives", 2, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "a", results[0].ID)
}

func TestMemoryBackendSearchHybridFusesDenseAndSparse(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	a := sampleChunk("a", []float64{1, 0, 0})
	a.Text = "derivatives and integrals in calculus"
	b := sampleChunk("b", []float64{0, 1, 0})
	b.Text = "a completely unrelated passage about history"

	_, err := backend.Add(ctx, []domain.Chunk{a, b})
	require.NoError(t, err)

	results, err := backend.SearchHybrid(ctx, "calculus derivatives", []float64{1, 0, 0}, 2, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "a", results[0].ID)
}
