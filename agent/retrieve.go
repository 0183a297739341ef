package agent

import (
	"context"
	"sort"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
	"github.com/eduassist/tutorbridge/vectorstore"
	"github.com/eduassist/tutorbridge/websearch"
	"golang.org/x/sync/errgroup"
)

// Defaults mirror the environment configuration table: DEFAULT_SEARCH_K,
// RELEVANCE_THRESHOLD, WEB_SEARCH_RESULTS_LIMIT, WEB_SEARCH_DAYS_BACK,
// RETRIEVAL_DEADLINE_MS.
const (
	DefaultSearchK           = 4
	DefaultRelevanceThreshold = 0.2
	DefaultWebResultsLimit   = 3
	DefaultWebDaysBack       = 90
	DefaultRetrievalDeadline = 8 * time.Second
)

// RetrievalDeps are the backends ParallelRetrieve fans out to. Either
// field may be nil; a nil backend simply never contributes results for
// its side of the fan-out.
type RetrievalDeps struct {
	Store              *vectorstore.Store
	Web                 websearch.Tool
	SearchK             int
	RelevanceThreshold  float64
	WebResultsLimit     int
	WebDaysBack         int
	RetrievalDeadline   time.Duration
}

func (d RetrievalDeps) withDefaults() RetrievalDeps {
	if d.SearchK <= 0 {
		d.SearchK = DefaultSearchK
	}
	if d.RelevanceThreshold <= 0 {
		d.RelevanceThreshold = DefaultRelevanceThreshold
	}
	if d.WebResultsLimit <= 0 {
		d.WebResultsLimit = DefaultWebResultsLimit
	}
	if d.WebDaysBack <= 0 {
		d.WebDaysBack = DefaultWebDaysBack
	}
	if d.RetrievalDeadline <= 0 {
		d.RetrievalDeadline = DefaultRetrievalDeadline
	}
	return d
}

// ParallelRetrieve runs the PDF and web retrieval tasks concurrently,
// joined by a hard deadline. The two tasks share no mutable state and
// may complete in any order; a failure or timeout on one degrades that
// side to an empty result without affecting the other. Only the sides
// route calls for are launched.
func ParallelRetrieve(ctx context.Context, deps RetrievalDeps, route domain.Route, query, subjectFilter string, recency bool) (pdf []domain.RetrievedChunk, web []domain.WebResult) {
	deps = deps.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, deps.RetrievalDeadline)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if route == domain.RoutePDFOnly || route == domain.RouteBoth {
		g.Go(func() error {
			pdf = retrievePDF(gctx, deps, query, subjectFilter)
			return nil
		})
	}
	if route == domain.RouteWebOnly || route == domain.RouteBoth {
		g.Go(func() error {
			web = retrieveWeb(gctx, deps, query, recency)
			return nil
		})
	}

	// Both task functions recover their own errors into an empty slice
	// and never return a non-nil error, so Wait only ever blocks until
	// both finish or the deadline fires.
	_ = g.Wait()
	return pdf, web
}

func retrievePDF(ctx context.Context, deps RetrievalDeps, query, subjectFilter string) []domain.RetrievedChunk {
	if deps.Store == nil {
		return nil
	}

	results, err := deps.Store.SearchByText(ctx, query, deps.SearchK, vectorstore.Filter{Subject: subjectFilter})
	if err != nil {
		rag.GlobalLogger.Warn("pdf retrieval failed, degrading to empty context", "error", err)
		return nil
	}

	kept := make([]domain.RetrievedChunk, 0, len(results))
	for _, r := range results {
		if r.Score < deps.RelevanceThreshold {
			continue
		}
		kept = append(kept, r)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > deps.SearchK {
		kept = kept[:deps.SearchK]
	}
	return kept
}

func retrieveWeb(ctx context.Context, deps RetrievalDeps, query string, recency bool) []domain.WebResult {
	if deps.Web == nil {
		return nil
	}

	var (
		results []domain.WebResult
		err     error
	)
	if recency {
		results, err = deps.Web.SearchRecent(ctx, query, deps.WebResultsLimit, deps.WebDaysBack)
	} else {
		results, err = deps.Web.SearchEducational(ctx, query, deps.WebResultsLimit)
	}
	if err != nil {
		rag.GlobalLogger.Warn("web retrieval failed, degrading to empty context", "error", err)
		return nil
	}
	if len(results) > deps.WebResultsLimit {
		results = results[:deps.WebResultsLimit]
	}
	return results
}
