// Package agent implements the hybrid retrieval state machine: it
// routes a query to the retrieval backends it needs, fans them out
// concurrently, fuses the results into a grounded context, and streams
// a generated answer. The router generalizes a binary simple/hybrid
// search dispatch into a four-way route.
package agent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
)

var greetingKeywords = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "greetings": {}, "howdy": {},
	"yo": {}, "sup": {}, "morning": {}, "afternoon": {}, "evening": {},
}

var recencyKeywords = []string{
	"latest", "recent", "current", "news", "today", "this year", "nowadays",
}

var textbookKeywords = []string{
	"chapter", "section", "exercise", "textbook", "problem set",
}

var (
	sectionPatternRe = regexp.MustCompile(`\b\d+\.\d+\b`)
	yearTokenRe      = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// Classifier is the LLM fallback consulted when the rule-based router
// can't decide: both patterns fire, or neither does. It must return one
// of domain.Route{None,PDFOnly,WebOnly,Both}.
type Classifier interface {
	Classify(ctx context.Context, query string) (domain.Route, error)
}

// Router tries rule-based detection first, falling back to an LLM
// classifier only when the rules are ambiguous.
type Router struct {
	classifier Classifier
}

// NewRouter builds a Router. classifier may be nil, in which case an
// ambiguous query always falls through directly to the
// index-emptiness tie-break.
func NewRouter(classifier Classifier) *Router {
	return &Router{classifier: classifier}
}

// Route decides which backends a turn should consult. indexSize is the
// current size of the vector repository, used only by the final
// tie-break when the classifier is unavailable or fails.
func (r *Router) Route(ctx context.Context, query string, indexSize int) domain.Route {
	norm := strings.ToLower(strings.TrimSpace(query))

	if isGreeting(norm) {
		return domain.RouteNone
	}

	recency := matchesRecency(norm)
	textbook := matchesTextbook(norm)

	switch {
	case recency && !textbook:
		return domain.RouteWebOnly
	case textbook && !recency:
		return domain.RoutePDFOnly
	}

	if r.classifier != nil {
		route, err := r.classifier.Classify(ctx, query)
		if err == nil && isValidRoute(route) {
			return route
		}
		rag.GlobalLogger.Warn("route classifier failed or returned an invalid label, falling back to deterministic rule", "error", err, "route", route)
	}

	if indexSize > 0 {
		return domain.RoutePDFOnly
	}
	return domain.RouteWebOnly
}

func isGreeting(norm string) bool {
	if norm == "" || strings.Contains(norm, "?") {
		return false
	}
	words := strings.Fields(norm)
	if len(words) > 5 {
		return false
	}
	for _, w := range words {
		w = strings.Trim(w, ".,!")
		if _, ok := greetingKeywords[w]; ok {
			return true
		}
	}
	return false
}

func matchesRecency(norm string) bool {
	for _, kw := range recencyKeywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	currentYear := time.Now().Year()
	for _, m := range yearTokenRe.FindAllString(norm, -1) {
		if y, err := strconv.Atoi(m); err == nil && y >= currentYear-1 {
			return true
		}
	}
	return false
}

func matchesTextbook(norm string) bool {
	for _, kw := range textbookKeywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return sectionPatternRe.MatchString(norm)
}

func isValidRoute(route domain.Route) bool {
	switch route {
	case domain.RouteNone, domain.RoutePDFOnly, domain.RouteWebOnly, domain.RouteBoth:
		return true
	default:
		return false
	}
}
