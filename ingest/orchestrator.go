package ingest

import (
	"context"
	"sync"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/embed"
	"github.com/eduassist/tutorbridge/rag"
	"github.com/eduassist/tutorbridge/vectorstore"
)

// FileOutcome is one submitted document's per-file result: source,
// pages, chunks added, whether OCR was used, and an error if any step
// failed.
type FileOutcome struct {
	Source      string
	Pages       int
	ChunksAdded int
	OCRUsed     bool
	Err         error
}

// DefaultLoadConcurrency bounds how many documents LoadConcurrent
// processes at once within a single Ingest call.
const DefaultLoadConcurrency = 4

// Orchestrator drives load → chunk → (batch embed) → store for a batch
// of documents, reporting a per-file outcome instead of aborting the
// whole batch on one failure.
type Orchestrator struct {
	Loader          *Loader
	Chunker         *Chunker
	Embedder        *embed.BatchEmbedder
	Store           *vectorstore.Store
	LoadConcurrency int
}

// NewOrchestrator builds an Orchestrator around its four collaborators.
func NewOrchestrator(loader *Loader, chunker *Chunker, embedder *embed.BatchEmbedder, store *vectorstore.Store) *Orchestrator {
	return &Orchestrator{
		Loader:          loader,
		Chunker:         chunker,
		Embedder:        embedder,
		Store:           store,
		LoadConcurrency: DefaultLoadConcurrency,
	}
}

// Ingest runs the full pipeline over inputs, keyed by source path, and
// reports one FileOutcome per input regardless of whether it
// succeeded.
func (o *Orchestrator) Ingest(ctx context.Context, inputs map[string][]byte) []FileOutcome {
	concurrency := o.LoadConcurrency
	if concurrency <= 0 {
		concurrency = DefaultLoadConcurrency
	}
	loaded := o.Loader.LoadConcurrent(ctx, inputs, concurrency)

	outcomes := make([]FileOutcome, 0, len(loaded))
	var allChunks []domain.Chunk

	for _, r := range loaded {
		if r.Err != nil {
			rag.GlobalLogger.Warn("ingestion failed to load document", "source", r.Source, "error", r.Err)
			outcomes = append(outcomes, FileOutcome{Source: r.Source, Err: r.Err})
			continue
		}

		chunks := o.Chunker.Chunk(r.Pages)
		allChunks = append(allChunks, chunks...)
		outcomes = append(outcomes, FileOutcome{
			Source:      r.Source,
			Pages:       len(r.Pages),
			ChunksAdded: len(chunks),
			OCRUsed:     r.OCRUsed,
		})
	}

	return o.embedAndStore(ctx, outcomes, allChunks)
}

// IngestURLs runs LoadURL in place of Load for each of urls, then
// the same chunk/embed/store tail as Ingest, so /process-webpages gets
// identical per-source outcome reporting to /upload-pdf. Page fetches
// run with the same bounded concurrency as file loads.
func (o *Orchestrator) IngestURLs(ctx context.Context, urls []string) []FileOutcome {
	concurrency := o.LoadConcurrency
	if concurrency <= 0 {
		concurrency = DefaultLoadConcurrency
	}

	sem := make(chan struct{}, concurrency)
	type loaded struct {
		source string
		page   domain.Page
		err    error
	}
	results := make(chan loaded, len(urls))
	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			page, err := o.Loader.LoadURL(ctx, u)
			results <- loaded{source: u, page: page, err: err}
		}(u)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]FileOutcome, 0, len(urls))
	var allChunks []domain.Chunk
	for r := range results {
		if r.err != nil {
			rag.GlobalLogger.Warn("ingestion failed to load web page", "source", r.source, "error", r.err)
			outcomes = append(outcomes, FileOutcome{Source: r.source, Err: r.err})
			continue
		}

		chunks := o.Chunker.Chunk([]domain.Page{r.page})
		allChunks = append(allChunks, chunks...)
		outcomes = append(outcomes, FileOutcome{
			Source:      r.source,
			Pages:       1,
			ChunksAdded: len(chunks),
		})
	}

	return o.embedAndStore(ctx, outcomes, allChunks)
}

func (o *Orchestrator) embedAndStore(ctx context.Context, outcomes []FileOutcome, allChunks []domain.Chunk) []FileOutcome {
	if len(allChunks) == 0 {
		return outcomes
	}

	embedded, embedErrs := o.Embedder.EmbedChunks(ctx, allChunks)
	for _, e := range embedErrs {
		rag.GlobalLogger.Warn("embedding failed for a chunk during ingestion, excluding it from storage", "error", e)
	}

	toStore := make([]domain.Chunk, 0, len(embedded))
	embedFailures := make(map[string]int, len(outcomes))
	for _, c := range embedded {
		if len(c.Embedding) == 0 {
			embedFailures[c.Metadata.Source]++
			continue
		}
		toStore = append(toStore, c)
	}
	for i := range outcomes {
		outcomes[i].ChunksAdded -= embedFailures[outcomes[i].Source]
	}

	if len(toStore) == 0 {
		return outcomes
	}

	if _, err := o.Store.Add(ctx, toStore); err != nil {
		rag.GlobalLogger.Error("vector store add failed during ingestion", "error", err)
		bySource := make(map[string]int, len(toStore))
		for _, c := range toStore {
			bySource[c.Metadata.Source]++
		}
		for i := range outcomes {
			if outcomes[i].Err == nil && bySource[outcomes[i].Source] > 0 {
				outcomes[i].Err = err
				outcomes[i].ChunksAdded = 0
			}
		}
	}

	return outcomes
}
