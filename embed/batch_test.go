package embed

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls     int64
	failEvery int
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	n := atomic.AddInt64(&f.calls, 1)
	if f.failEvery > 0 && int(n)%f.failEvery == 0 {
		return nil, fmt.Errorf("simulated failure")
	}
	return []float64{float64(len(text))}, nil
}

func (f *fakeProvider) GetDimension() (int, error) { return 1, nil }

func TestBatchEmbedderEmbedsAllChunks(t *testing.T) {
	provider := &fakeProvider{}
	b := NewBatchEmbedder(provider, WithConcurrency(3))

	chunks := make([]domain.Chunk, 10)
	for i := range chunks {
		chunks[i] = domain.Chunk{ID: fmt.Sprintf("c%d", i), Text: "some chunk text"}
	}

	out, errs := b.EmbedChunks(context.Background(), chunks)
	require.Empty(t, errs)
	for _, c := range out {
		require.NotEmpty(t, c.Embedding)
	}
}

func TestBatchEmbedderPartialFailureDoesNotAbortBatch(t *testing.T) {
	provider := &fakeProvider{failEvery: 3}
	b := NewBatchEmbedder(provider, WithConcurrency(2))

	chunks := make([]domain.Chunk, 9)
	for i := range chunks {
		chunks[i] = domain.Chunk{ID: fmt.Sprintf("c%d", i), Text: "text"}
	}

	out, errs := b.EmbedChunks(context.Background(), chunks)
	require.Len(t, out, 9)
	require.NotEmpty(t, errs)
	require.Less(t, len(errs), len(chunks))
}
