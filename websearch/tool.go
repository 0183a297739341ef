// Package websearch implements the web search tool: a bounded,
// idempotent lookup against an external search API, built the same way
// a SearXNG-backed tool is: a GET-based JSON search client with an
// HTML-scrape fallback and context-bound timeouts.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
	"golang.org/x/net/html"
)

// DefaultTimeout is the per-call bound the WEB_SEARCH_* operations
// default to when no override is configured.
const DefaultTimeout = 10 * time.Second

// Tool is the web search contract: both operations are idempotent GETs
// that degrade to an empty result set on failure rather than
// propagating an error, so a flaky search backend never aborts a turn.
type Tool interface {
	SearchRecent(ctx context.Context, query string, numResults, daysBack int) ([]domain.WebResult, error)
	SearchEducational(ctx context.Context, query string, numResults int) ([]domain.WebResult, error)
}

// HTTPTool queries a SearXNG-compatible search endpoint over HTTP,
// preferring its JSON API and falling back to scraping result links out
// of the HTML results page when JSON is unavailable.
type HTTPTool struct {
	client  *http.Client
	baseURL string
}

// Option configures an HTTPTool.
type Option func(*HTTPTool)

// WithHTTPClient overrides the HTTP client, e.g. to inject a custom
// transport in tests.
func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTPTool) { t.client = client }
}

// NewHTTPTool builds an HTTPTool against a SearXNG-compatible baseURL,
// bounded by DefaultTimeout unless overridden via WithHTTPClient.
func NewHTTPTool(baseURL string, opts ...Option) *HTTPTool {
	t := &HTTPTool{
		client:  &http.Client{Timeout: DefaultTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SearchRecent biases results toward recency: daysBack restricts the
// search engine's own time_range parameter, which is how WEB_ONLY
// recency routing gets reflected in the query.
func (t *HTTPTool) SearchRecent(ctx context.Context, query string, numResults, daysBack int) ([]domain.WebResult, error) {
	return t.search(ctx, query, numResults, "news", timeRangeFor(daysBack))
}

// SearchEducational favors the general category with no time bias,
// used by the PDF-adjacent BOTH route when the query isn't recency
// flavored but still warrants a live lookup.
func (t *HTTPTool) SearchEducational(ctx context.Context, query string, numResults int) ([]domain.WebResult, error) {
	return t.search(ctx, query, numResults, "general", "")
}

func timeRangeFor(daysBack int) string {
	switch {
	case daysBack <= 1:
		return "day"
	case daysBack <= 7:
		return "week"
	case daysBack <= 31:
		return "month"
	default:
		return "year"
	}
}

// search never returns an error for a reachable-but-empty or
// unreachable backend: it logs and returns an empty slice, degrading to
// empty rather than failing the turn. A non-nil error is reserved for a
// malformed query that can never succeed (none today), keeping the
// signature honest rather than decorative.
func (t *HTTPTool) search(ctx context.Context, query string, numResults int, category, timeRange string) ([]domain.WebResult, error) {
	if numResults <= 0 {
		numResults = 3
	}

	results, err := t.searchJSON(ctx, query, numResults, category, timeRange)
	if err == nil && len(results) > 0 {
		return results, nil
	}
	if err != nil {
		rag.GlobalLogger.Warn("web search JSON endpoint failed, falling back to HTML", "error", err)
	}

	results, err = t.searchHTML(ctx, query, numResults, category, timeRange)
	if err != nil {
		rag.GlobalLogger.Warn("web search failed, returning empty result set", "error", err)
		return nil, nil
	}
	return results, nil
}

func (t *HTTPTool) searchJSON(ctx context.Context, query string, numResults int, category, timeRange string) ([]domain.WebResult, error) {
	req, err := t.newRequest(ctx, query, category, timeRange, "json")
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("websearch: http %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Title     string  `json:"title"`
			URL       string  `json:"url"`
			Content   string  `json:"content"`
			Score     float64 `json:"score"`
			PublishedDate string `json:"publishedDate"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]domain.WebResult, 0, numResults)
	for i, r := range parsed.Results {
		if i >= numResults {
			break
		}
		out = append(out, domain.WebResult{
			Title:         strings.TrimSpace(r.Title),
			URL:           r.URL,
			Snippet:       strings.TrimSpace(r.Content),
			PublishedDate: r.PublishedDate,
			Score:         normalizeEngineScore(r.Score),
		})
	}
	return out, nil
}

func (t *HTTPTool) searchHTML(ctx context.Context, query string, numResults int, category, timeRange string) ([]domain.WebResult, error) {
	req, err := t.newRequest(ctx, query, category, timeRange, "")
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("websearch: http %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	links := extractResultLinks(root)
	seen := make(map[string]struct{}, len(links))
	out := make([]domain.WebResult, 0, numResults)
	rank := 0
	for _, link := range links {
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		title := link
		if u, err := url.Parse(link); err == nil && u.Host != "" {
			title = u.Host + u.Path
		}
		rank++
		out = append(out, domain.WebResult{Title: title, URL: link, Score: rankScore(rank, numResults)})
		if len(out) >= numResults {
			break
		}
	}
	return out, nil
}

func (t *HTTPTool) newRequest(ctx context.Context, query, category, timeRange, format string) (*http.Request, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("categories", category)
	if timeRange != "" {
		v.Set("time_range", timeRange)
	}
	if format != "" {
		v.Set("format", format)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("User-Agent", "tutorbridge-websearch/1.0")
	return req, nil
}

// normalizeEngineScore maps an upstream engine score (no fixed range
// across engines) onto [0,1], higher is better, matching the same
// normalization the vector repository applies to retrieval scores.
func normalizeEngineScore(score float64) float64 {
	if score <= 0 {
		return 0
	}
	if score >= 1 {
		return 1
	}
	return score
}

// rankScore derives a [0,1] score from result position when the
// backend provides no usable relevance score of its own (the HTML
// fallback path has no engine score to normalize).
func rankScore(rank, total int) float64 {
	if total <= 0 {
		total = 1
	}
	score := 1 - float64(rank-1)/float64(total+1)
	if score < 0 {
		return 0
	}
	return score
}

func extractResultLinks(doc *html.Node) []string {
	var urls []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.Contains(attr.Val, "http") {
					urls = append(urls, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return urls
}
