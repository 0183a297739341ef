package agent

import (
	"context"
	"testing"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/stretchr/testify/require"
)

// brokenClassifier always errors, used to prove the deterministic rules
// never need to consult it.
type brokenClassifier struct{ calls int }

func (b *brokenClassifier) Classify(ctx context.Context, query string) (domain.Route, error) {
	b.calls++
	return "", errNotReached
}

var errNotReached = &classifierError{"classifier should not have been consulted"}

type classifierError struct{ msg string }

func (e *classifierError) Error() string { return e.msg }

func TestRouteGreetingIsNone(t *testing.T) {
	r := NewRouter(&brokenClassifier{})
	route := r.Route(context.Background(), "Hello there", 10)
	require.Equal(t, domain.RouteNone, route)
}

func TestRouteRecencyKeywordIsWebOnly(t *testing.T) {
	r := NewRouter(&brokenClassifier{})
	route := r.Route(context.Background(), "What are the latest developments in AI?", 10)
	require.Equal(t, domain.RouteWebOnly, route)
}

func TestRouteTextbookKeywordIsPDFOnly(t *testing.T) {
	r := NewRouter(&brokenClassifier{})
	route := r.Route(context.Background(), "Explain chapter 3 section 3.2", 10)
	require.Equal(t, domain.RoutePDFOnly, route)
}

// TestRouteDeterminismIgnoresClassifier proves the rules-first router
// never calls the LLM fallback when a rule fires uniquely.
func TestRouteDeterminismIgnoresClassifier(t *testing.T) {
	classifier := &brokenClassifier{}
	r := NewRouter(classifier)

	_ = r.Route(context.Background(), "What is the latest news today?", 10)
	_ = r.Route(context.Background(), "Can you help with exercise 4.1?", 10)

	require.Zero(t, classifier.calls)
}

// fixedClassifier always returns a configured route.
type fixedClassifier struct {
	route domain.Route
	err   error
}

func (f fixedClassifier) Classify(ctx context.Context, query string) (domain.Route, error) {
	return f.route, f.err
}

func TestRouteAmbiguousQueryConsultsClassifier(t *testing.T) {
	r := NewRouter(fixedClassifier{route: domain.RouteBoth})
	route := r.Route(context.Background(), "tell me something interesting", 10)
	require.Equal(t, domain.RouteBoth, route)
}

func TestRouteClassifierInvalidLabelFallsBackToIndexEmptiness(t *testing.T) {
	r := NewRouter(fixedClassifier{route: domain.Route("NOT_A_ROUTE")})

	require.Equal(t, domain.RoutePDFOnly, r.Route(context.Background(), "tell me something interesting", 5))
	require.Equal(t, domain.RouteWebOnly, r.Route(context.Background(), "tell me something interesting", 0))
}

func TestRouteClassifierUnavailableFallsBackToIndexEmptiness(t *testing.T) {
	r := NewRouter(nil)
	require.Equal(t, domain.RoutePDFOnly, r.Route(context.Background(), "tell me something interesting", 5))
	require.Equal(t, domain.RouteWebOnly, r.Route(context.Background(), "tell me something interesting", 0))
}
