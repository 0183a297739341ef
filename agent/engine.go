package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
	"github.com/eduassist/tutorbridge/session"
	"github.com/eduassist/tutorbridge/stream"
)

// DefaultTurnDeadline mirrors TURN_DEADLINE_MS.
const DefaultTurnDeadline = 60 * time.Second

// AgentState is the per-query ephemeral state driving one turn.
// Engine.Run is a pure function of AgentState plus its configured
// backends: the same state, deps, and context always drive the same
// sequence of state transitions (route → retrieve → fuse → generate),
// only the generator's actual text varying between calls.
type AgentState struct {
	Query   string
	History []domain.Message
	// UseRAG mirrors the /chat{,/stream} request field: false skips
	// routing entirely and generates directly from the conversation.
	UseRAG bool
}

// Engine is the hybrid retrieval state machine's façade: a Router, a
// RetrievalDeps, and a Generator, wired once at process startup and
// shared across every turn.
type Engine struct {
	Router *Router
	Deps   RetrievalDeps
	Gen    Generator

	ContextCharBudget int
	TurnDeadline      time.Duration
}

// NewEngine builds an Engine with default budgets.
func NewEngine(router *Router, deps RetrievalDeps, gen Generator) *Engine {
	return &Engine{
		Router:            router,
		Deps:              deps,
		Gen:               gen,
		ContextCharBudget: DefaultContextCharBudget,
		TurnDeadline:      DefaultTurnDeadline,
	}
}

// turnResult holds what one turn produced: the accumulated answer text
// and whether the turn completed. Neither Run nor HandleTurn uses it;
// HandleTurn tracks the same two values in local variables.
type turnResult struct {
	answer    strings.Builder
	succeeded bool
}

// Run drives one turn through route → (parallel retrieval) → fuse →
// generate (streaming) → done, or an error event on a fatal generation
// failure. It never touches session storage; HandleTurn layers that on
// top.
func (e *Engine) Run(ctx context.Context, state AgentState) <-chan stream.Event {
	out := make(chan stream.Event, 8)

	go func() {
		defer close(out)

		ctx, cancel := context.WithTimeout(ctx, e.turnDeadline())
		defer cancel()

		route := domain.RouteNone
		if state.UseRAG && e.Router != nil {
			indexSize := 0
			if e.Deps.Store != nil {
				if n, err := e.Deps.Store.Size(ctx); err == nil {
					indexSize = n
				}
			}
			route = e.Router.Route(ctx, state.Query, indexSize)
		}

		var pdf []domain.RetrievedChunk
		var web []domain.WebResult
		if route != domain.RouteNone {
			recency := route == domain.RouteWebOnly || matchesRecency(strings.ToLower(state.Query))
			pdf, web = ParallelRetrieve(ctx, e.Deps, route, state.Query, "", recency)
		}

		fused := Fuse(pdf, web, e.ContextCharBudget)
		userPrompt := BuildUserPrompt(state.History, fused, state.Query)

		deltas, err := e.Gen.GenerateStream(ctx, SystemPrompt, userPrompt)
		if err != nil {
			rag.GlobalLogger.Warn("generation unavailable before first delta", "error", err)
			send(ctx, out, stream.Error("the assistant is temporarily unavailable, please try again"))
			return
		}

		gotDelta := false
		for d := range deltas {
			if d.Err != nil {
				if !gotDelta {
					rag.GlobalLogger.Warn("generation failed before first delta", "error", d.Err)
					send(ctx, out, stream.Error("the assistant is temporarily unavailable, please try again"))
				} else {
					rag.GlobalLogger.Warn("generation interrupted mid-stream", "error", d.Err)
					send(ctx, out, stream.Error("the response was interrupted, please try again"))
				}
				return
			}
			gotDelta = true
			if !send(ctx, out, stream.Chunk(d.Text)) {
				// Caller disconnected; retrieval/generation already
				// produced what it produced, but no new output is
				// requested or delivered.
				return
			}
		}

		if !gotDelta {
			rag.GlobalLogger.Warn("generator produced no deltas")
			send(ctx, out, stream.Error("the assistant is temporarily unavailable, please try again"))
			return
		}

		send(ctx, out, stream.Sources(fused.PDFSources, fused.WebSources, route))
		send(ctx, out, stream.Done())
	}()

	return out
}

func (e *Engine) turnDeadline() time.Duration {
	if e.TurnDeadline <= 0 {
		return DefaultTurnDeadline
	}
	return e.TurnDeadline
}

// send delivers ev unless ctx is already done, in which case it reports
// false so the caller can stop producing further events.
func send(ctx context.Context, out chan<- stream.Event, ev stream.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// ErrNoSessionManager is returned by HandleTurn when no session manager
// was configured on construction.
var ErrNoSessionManager = errors.New("agent: no session manager configured")

// HandleTurn wires the full query path: session history lookup → Run →
// (as the caller drains events) → session append. It resolves/creates
// the session, holds its per-session turn lock for the whole turn so
// turns against one session run strictly serially, and returns the
// resolved session id alongside a channel the caller can stream
// straight to the SSE/JSON response writer.
//
// The assistant's turn is appended to history only once the stream
// completes successfully (TypeDone observed); any turn that ends without
// TypeDone (an error before or during generation, or a cancelled
// context) leaves only the user's message recorded, so no partial
// assistant answer enters history.
func (e *Engine) HandleTurn(ctx context.Context, sessions *session.Manager, sessionID, message string, useRAG bool) (string, <-chan stream.Event, error) {
	if sessions == nil {
		return "", nil, ErrNoSessionManager
	}

	resolvedID, history := sessions.GetOrCreate(sessionID)
	unlock := sessions.Lock(resolvedID)

	userMsg := domain.Message{Role: domain.RoleUser, Content: message, Timestamp: time.Now().UTC()}
	inner := e.Run(ctx, AgentState{Query: message, History: history, UseRAG: useRAG})

	out := make(chan stream.Event, 8)
	go func() {
		defer close(out)
		defer unlock()

		var answer strings.Builder
		succeeded := false
		for ev := range inner {
			out <- ev
			switch ev.Type {
			case stream.TypeChunk:
				answer.WriteString(ev.Content)
			case stream.TypeDone:
				succeeded = true
			}
		}

		if succeeded {
			assistantMsg := domain.Message{Role: domain.RoleAssistant, Content: answer.String(), Timestamp: time.Now().UTC()}
			sessions.Append(resolvedID, userMsg, assistantMsg)
		} else {
			sessions.AppendUserOnly(resolvedID, userMsg)
		}
	}()

	return resolvedID, out, nil
}

// Size reports the current vector repository size, exposed for callers
// (e.g. the HTTP health/status surface) that want to report index state
// without reaching into vectorstore directly.
func (e *Engine) Size(ctx context.Context) (int, error) {
	if e.Deps.Store == nil {
		return 0, nil
	}
	return e.Deps.Store.Size(ctx)
}
