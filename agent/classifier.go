package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/teilomillet/gollm"
)

// DefaultClassifierTimeout bounds the LLM fallback call; a slow or
// hanging classifier must not be allowed to stall routing indefinitely.
const DefaultClassifierTimeout = 5 * time.Second

const classifierSystemPrompt = `You are a routing classifier for an educational assistant. ` +
	`Given a student's question, respond with exactly one token, nothing else: ` +
	`NONE, PDF_ONLY, WEB_ONLY, or BOTH. ` +
	`Use NONE for greetings or small talk. ` +
	`Use PDF_ONLY when the question is about material likely covered in a textbook the assistant has ingested. ` +
	`Use WEB_ONLY when the question needs current or recent information. ` +
	`Use BOTH when the question benefits from both the textbook and current web context.`

// LLMClassifier wraps a gollm.LLM as the routing Classifier.
type LLMClassifier struct {
	llm     gollm.LLM
	timeout time.Duration
}

// NewLLMClassifier builds an LLMClassifier around llm.
func NewLLMClassifier(llm gollm.LLM) *LLMClassifier {
	return &LLMClassifier{llm: llm, timeout: DefaultClassifierTimeout}
}

// WithClassifierTimeout overrides DefaultClassifierTimeout.
func (c *LLMClassifier) WithClassifierTimeout(d time.Duration) *LLMClassifier {
	c.timeout = d
	return c
}

// Classify asks the LLM for one of the four route tokens and parses the
// response. A malformed or empty response is reported as an error so
// the Router falls back deterministically rather than guessing.
func (c *LLMClassifier) Classify(ctx context.Context, query string) (domain.Route, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := gollm.NewPrompt(query, gollm.WithSystemPrompt(classifierSystemPrompt, gollm.CacheTypeEphemeral))
	resp, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("agent: classify: %w", err)
	}
	return parseRouteToken(resp)
}

func parseRouteToken(resp string) (domain.Route, error) {
	token := strings.ToUpper(strings.TrimSpace(resp))
	token = strings.Trim(token, ".\"'")
	switch domain.Route(token) {
	case domain.RouteNone, domain.RoutePDFOnly, domain.RouteWebOnly, domain.RouteBoth:
		return domain.Route(token), nil
	default:
		return "", fmt.Errorf("agent: unparseable route classifier response: %q", resp)
	}
}
