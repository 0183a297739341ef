package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/vectorstore"
	"github.com/stretchr/testify/require"
)

// latencyBackend simulates a PDF backend with a fixed response delay,
// used to exercise the concurrency property that a BOTH-route turn's
// wall-clock time must track max(pdfLatency, webLatency), not their
// sum.
type latencyBackend struct {
	delay   time.Duration
	results []domain.RetrievedChunk
	err     error
}

func (b *latencyBackend) Add(ctx context.Context, chunks []domain.Chunk) (domain.Ack, error) {
	return domain.Ack{}, nil
}

func (b *latencyBackend) Search(ctx context.Context, vector []float64, k int, filter vectorstore.Filter) ([]domain.RetrievedChunk, error) {
	select {
	case <-time.After(b.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.results, b.err
}

func (b *latencyBackend) Size(ctx context.Context) (int, error)        { return len(b.results), nil }
func (b *latencyBackend) DeleteAll(ctx context.Context) (int, error) { return 0, nil }

type fakeEmbedProvider struct{}

func (fakeEmbedProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}
func (fakeEmbedProvider) GetDimension() (int, error) { return 3, nil }

// latencyWebTool simulates a web search tool with a fixed response delay.
type latencyWebTool struct {
	delay   time.Duration
	results []domain.WebResult
	err     error
}

func (w *latencyWebTool) SearchRecent(ctx context.Context, query string, numResults, daysBack int) ([]domain.WebResult, error) {
	return w.wait(ctx)
}

func (w *latencyWebTool) SearchEducational(ctx context.Context, query string, numResults int) ([]domain.WebResult, error) {
	return w.wait(ctx)
}

func (w *latencyWebTool) wait(ctx context.Context) ([]domain.WebResult, error) {
	select {
	case <-time.After(w.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return w.results, w.err
}

func TestParallelRetrieveRunsBothTasksConcurrently(t *testing.T) {
	pdfDelay := 120 * time.Millisecond
	webDelay := 150 * time.Millisecond

	store := vectorstore.NewStore(&latencyBackend{
		delay:   pdfDelay,
		results: []domain.RetrievedChunk{{Chunk: domain.Chunk{ID: "c1"}, Score: 0.9}},
	}, fakeEmbedProvider{})
	web := &latencyWebTool{delay: webDelay, results: []domain.WebResult{{Title: "w", URL: "https://x"}}}

	deps := RetrievalDeps{Store: store, Web: web, RelevanceThreshold: 0}

	start := time.Now()
	pdf, webResults := ParallelRetrieve(context.Background(), deps, domain.RouteBoth, "q", "", false)
	elapsed := time.Since(start)

	require.NotEmpty(t, pdf)
	require.NotEmpty(t, webResults)
	// Serial execution would take pdfDelay+webDelay (~270ms); concurrent
	// execution should stay close to max(pdfDelay, webDelay) plus slack.
	require.Less(t, elapsed, pdfDelay+webDelay)
}

func TestParallelRetrieveDegradesOnPDFFailure(t *testing.T) {
	store := vectorstore.NewStore(&latencyBackend{err: fmt.Errorf("boom")}, fakeEmbedProvider{})
	web := &latencyWebTool{results: []domain.WebResult{{Title: "w", URL: "https://x"}}}

	deps := RetrievalDeps{Store: store, Web: web}
	pdf, webResults := ParallelRetrieve(context.Background(), deps, domain.RouteBoth, "q", "", false)

	require.Empty(t, pdf)
	require.NotEmpty(t, webResults)
}

func TestParallelRetrieveDegradesOnWebFailure(t *testing.T) {
	store := vectorstore.NewStore(&latencyBackend{
		results: []domain.RetrievedChunk{{Chunk: domain.Chunk{ID: "c1"}, Score: 0.9}},
	}, fakeEmbedProvider{})
	web := &latencyWebTool{err: fmt.Errorf("boom")}

	deps := RetrievalDeps{Store: store, Web: web, RelevanceThreshold: 0}
	pdf, webResults := ParallelRetrieve(context.Background(), deps, domain.RouteBoth, "q", "", false)

	require.NotEmpty(t, pdf)
	require.Empty(t, webResults)
}

func TestParallelRetrieveFiltersBelowRelevanceThreshold(t *testing.T) {
	store := vectorstore.NewStore(&latencyBackend{
		results: []domain.RetrievedChunk{
			{Chunk: domain.Chunk{ID: "low"}, Score: 0.1},
			{Chunk: domain.Chunk{ID: "high"}, Score: 0.8},
		},
	}, fakeEmbedProvider{})

	deps := RetrievalDeps{Store: store, RelevanceThreshold: 0.2}
	pdf, _ := ParallelRetrieve(context.Background(), deps, domain.RoutePDFOnly, "q", "", false)

	require.Len(t, pdf, 1)
	require.Equal(t, "high", pdf[0].ID)
}

func TestParallelRetrieveOnlyLaunchesRoutedSides(t *testing.T) {
	store := vectorstore.NewStore(&latencyBackend{
		results: []domain.RetrievedChunk{{Chunk: domain.Chunk{ID: "c1"}, Score: 0.9}},
	}, fakeEmbedProvider{})
	web := &latencyWebTool{results: []domain.WebResult{{Title: "w", URL: "https://x"}}}

	deps := RetrievalDeps{Store: store, Web: web, RelevanceThreshold: 0}
	pdf, webResults := ParallelRetrieve(context.Background(), deps, domain.RoutePDFOnly, "q", "", false)

	require.NotEmpty(t, pdf)
	require.Empty(t, webResults)
}
