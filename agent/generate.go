package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/teilomillet/gollm"
)

// ErrGenerationUnavailable reports that the generator produced no
// output at all before the first delta — fatal to the turn.
var ErrGenerationUnavailable = errors.New("agent: generation unavailable")

// SystemPrompt is the fixed prompt: educational tone, math delimiter
// contract, citation-by-label instruction, and the explicit
// no-grounding notice.
const SystemPrompt = `You are a patient, encouraging educational assistant helping a student understand their coursework.

Rules:
- Write in clear, approachable prose appropriate for a student.
- All math must use $...$ for inline expressions and $$...$$ for block expressions. No other delimiter is valid.
- When you use information from the provided context, cite it inline using its label: (1), (2), ... for textbook sources and (W1), (W2), ... for web sources.
- If the provided context is empty, say explicitly that no relevant information was found before answering from general knowledge, and make clear the answer is not grounded in the student's materials.`

// GenDelta is one unit of streamed generator output. A non-nil Err is
// terminal: no further deltas follow it.
type GenDelta struct {
	Text string
	Err  error
}

// Generator produces a streamed sequence of text deltas for a prompt.
// It is the generation seam: the router, retrieval, and fusion stages
// never talk to an LLM directly, only through this interface.
type Generator interface {
	GenerateStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan GenDelta, error)
}

// GollmGenerator wraps a gollm.LLM. gollm's documented surface in this
// module is a single blocking Generate call, not a token stream — see
// DESIGN.md for why streaming is synthesized here rather than assumed.
// GenerateStream issues one Generate call, then re-chunks the full
// response into word-group deltas delivered incrementally over the
// returned channel, so callers can treat generation uniformly whether
// or not the underlying provider streams natively.
type GollmGenerator struct {
	llm        gollm.LLM
	deltaWords int
	deltaDelay time.Duration
}

// GollmOption configures a GollmGenerator.
type GollmOption func(*GollmGenerator)

// WithDeltaWords sets how many words each synthesized delta carries.
func WithDeltaWords(n int) GollmOption { return func(g *GollmGenerator) { g.deltaWords = n } }

// WithDeltaDelay sets the pacing between synthesized deltas.
func WithDeltaDelay(d time.Duration) GollmOption { return func(g *GollmGenerator) { g.deltaDelay = d } }

// NewGollmGenerator builds a GollmGenerator around llm.
func NewGollmGenerator(llm gollm.LLM, opts ...GollmOption) *GollmGenerator {
	g := &GollmGenerator{llm: llm, deltaWords: 6, deltaDelay: 15 * time.Millisecond}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GollmGenerator) GenerateStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan GenDelta, error) {
	prompt := gollm.NewPrompt(userPrompt, gollm.WithSystemPrompt(systemPrompt, gollm.CacheTypeEphemeral))
	full, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	if strings.TrimSpace(full) == "" {
		return nil, ErrGenerationUnavailable
	}

	out := make(chan GenDelta)
	go func() {
		defer close(out)
		for _, delta := range splitIntoDeltas(full, g.deltaWords) {
			select {
			case <-ctx.Done():
				out <- GenDelta{Err: ctx.Err()}
				return
			case out <- GenDelta{Text: delta}:
			}
			if g.deltaDelay > 0 {
				select {
				case <-ctx.Done():
					out <- GenDelta{Err: ctx.Err()}
					return
				case <-time.After(g.deltaDelay):
				}
			}
		}
	}()
	return out, nil
}

// splitIntoDeltas groups text into chunks of wordsPerDelta words,
// preserving the original whitespace within each group so re-joining
// the deltas reproduces the source text exactly.
func splitIntoDeltas(text string, wordsPerDelta int) []string {
	if wordsPerDelta <= 0 {
		wordsPerDelta = 6
	}

	var deltas []string
	rest := text
	for len(rest) > 0 {
		idx := nthWordBoundary(rest, wordsPerDelta)
		if idx <= 0 || idx >= len(rest) {
			deltas = append(deltas, rest)
			break
		}
		deltas = append(deltas, rest[:idx])
		rest = rest[idx:]
	}
	return deltas
}

// nthWordBoundary returns the byte offset just past the nth
// whitespace-delimited word in s, or len(s) if s has fewer words.
func nthWordBoundary(s string, n int) int {
	count := 0
	inWord := false
	for i, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if !isSpace {
			inWord = true
		} else if inWord {
			inWord = false
			count++
			if count == n {
				return i
			}
		}
	}
	return len(s)
}

// BuildUserPrompt composes the prompt body handed to the generator: the
// bounded conversation history, the fused retrieval context, and the
// current question.
func BuildUserPrompt(history []domain.Message, fused FusedContext, question string) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}

	if fused.Empty() {
		b.WriteString("No information was found in the textbook index or the web search for this question.\n\n")
	} else {
		b.WriteString(fused.Text)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}
