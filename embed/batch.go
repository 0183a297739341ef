package embed

import (
	"context"
	"sync"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
	"golang.org/x/time/rate"
)

// Defaults mirror the environment configuration table: EMBED_BATCH,
// EMBED_CONCURRENCY.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// BatchEmbedder embeds chunks in batches with bounded worker concurrency
// and a token-bucket rate limiter, generalizing an unbatched sequential
// EmbedChunks loop into a worker-pool version bounded by
// EMBED_CONCURRENCY.
type BatchEmbedder struct {
	provider    Provider
	batchSize   int
	concurrency int
	limiter     *rate.Limiter
}

// BatchOption configures a BatchEmbedder.
type BatchOption func(*BatchEmbedder)

func WithBatchSize(n int) BatchOption    { return func(b *BatchEmbedder) { b.batchSize = n } }
func WithConcurrency(n int) BatchOption  { return func(b *BatchEmbedder) { b.concurrency = n } }
func WithRateLimit(perSecond float64, burst int) BatchOption {
	return func(b *BatchEmbedder) { b.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewBatchEmbedder builds a BatchEmbedder around provider with default
// budgets: 64 chunks per logical batch, 4 concurrent embedding calls in
// flight, no rate limit unless WithRateLimit is supplied.
func NewBatchEmbedder(provider Provider, opts ...BatchOption) *BatchEmbedder {
	b := &BatchEmbedder{
		provider:    provider,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EmbedChunks embeds every chunk, writing the resulting vector directly
// onto Chunk.Embedding. Chunks that fail to embed are reported via errs
// but do not stop the rest of the batch from embedding; a per-chunk
// embedding failure is non-fatal to the batch.
func (b *BatchEmbedder) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, []error) {
	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)

	batchSize := b.batchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for i := range out {
		// Finish the current batch before starting the next one.
		if i > 0 && i%batchSize == 0 {
			wg.Wait()
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if b.limiter != nil {
				if err := b.limiter.Wait(ctx); err != nil {
					mu.Lock()
					errs = append(errs, &EmbedChunkError{Index: i, Chunk: out[i], Err: err})
					mu.Unlock()
					return
				}
			}

			vec, err := b.provider.Embed(ctx, out[i].Text)
			if err != nil {
				rag.GlobalLogger.Warn("embedding failed for chunk", "chunk_id", out[i].ID, "error", err)
				mu.Lock()
				errs = append(errs, &EmbedChunkError{Index: i, Chunk: out[i], Err: err})
				mu.Unlock()
				return
			}
			out[i].Embedding = vec
		}(i)
	}
	wg.Wait()
	return out, errs
}
