package ingest

import (
	"context"
	"sync"

	"github.com/eduassist/tutorbridge/domain"
)

// FileResult is one input's outcome from a concurrent batch load.
type FileResult struct {
	Source  string
	Pages   []domain.Page
	OCRUsed bool
	Err     error
}

// LoadConcurrent loads a batch of (source, bytes) inputs with bounded
// goroutine concurrency, using the same WaitGroup-plus-buffered-channel
// pattern as other concurrent fan-out work in this codebase. A failure
// loading one document is reported in its own FileResult and never
// blocks or aborts the others.
func (l *Loader) LoadConcurrent(ctx context.Context, inputs map[string][]byte, concurrency int) []FileResult {
	if concurrency <= 0 {
		concurrency = 4
	}

	sem := make(chan struct{}, concurrency)
	results := make(chan FileResult, len(inputs))
	var wg sync.WaitGroup

	for source, data := range inputs {
		wg.Add(1)
		go func(source string, data []byte) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pages, ocrUsed, err := l.Load(ctx, source, data)
			results <- FileResult{Source: source, Pages: pages, OCRUsed: ocrUsed, Err: err}
		}(source, data)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]FileResult, 0, len(inputs))
	for r := range results {
		out = append(out, r)
	}
	return out
}
