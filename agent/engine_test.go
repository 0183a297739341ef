package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/eduassist/tutorbridge/session"
	"github.com/eduassist/tutorbridge/stream"
	"github.com/stretchr/testify/require"
)

// fakeGenerator emits a fixed sequence of deltas, optionally failing
// before or after the first one.
type fakeGenerator struct {
	deltas     []string
	failBefore bool
	failAfter  bool
}

func (g *fakeGenerator) GenerateStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan GenDelta, error) {
	if g.failBefore {
		return nil, fmt.Errorf("generator unavailable")
	}

	out := make(chan GenDelta, len(g.deltas)+1)
	for _, d := range g.deltas {
		out <- GenDelta{Text: d}
	}
	if g.failAfter {
		out <- GenDelta{Err: fmt.Errorf("interrupted")}
	}
	close(out)
	return out, nil
}

func drain(ch <-chan stream.Event) []stream.Event {
	var evs []stream.Event
	for e := range ch {
		evs = append(evs, e)
	}
	return evs
}

// TestEngineRunEventOrderMatchesChunkStarSourcesDone verifies the
// streaming-order testable property: chunk* sources done.
func TestEngineRunEventOrderMatchesChunkStarSourcesDone(t *testing.T) {
	e := NewEngine(nil, RetrievalDeps{}, &fakeGenerator{deltas: []string{"hello ", "world"}})

	events := drain(e.Run(context.Background(), AgentState{Query: "Hello", UseRAG: false}))

	require.GreaterOrEqual(t, len(events), 3)
	last := len(events) - 1
	require.Equal(t, stream.TypeDone, events[last].Type)
	require.Equal(t, stream.TypeSources, events[last-1].Type)
	for _, e := range events[:last-1] {
		require.Equal(t, stream.TypeChunk, e.Type)
	}
}

func TestEngineRunGenerationUnavailableBeforeFirstDeltaEmitsError(t *testing.T) {
	e := NewEngine(nil, RetrievalDeps{}, &fakeGenerator{failBefore: true})

	events := drain(e.Run(context.Background(), AgentState{Query: "hi"}))

	require.Len(t, events, 1)
	require.Equal(t, stream.TypeError, events[0].Type)
}

func TestEngineRunGenerationInterruptedMidStreamEmitsError(t *testing.T) {
	e := NewEngine(nil, RetrievalDeps{}, &fakeGenerator{deltas: []string{"partial"}, failAfter: true})

	events := drain(e.Run(context.Background(), AgentState{Query: "hi"}))

	require.Len(t, events, 2)
	require.Equal(t, stream.TypeChunk, events[0].Type)
	require.Equal(t, stream.TypeError, events[1].Type)
}

// TestHandleTurnAppendsBothMessagesOnSuccess checks the session
// invariant: a completed turn grows history by exactly two messages.
func TestHandleTurnAppendsBothMessagesOnSuccess(t *testing.T) {
	e := NewEngine(nil, RetrievalDeps{}, &fakeGenerator{deltas: []string{"answer"}})
	sessions := session.NewManager()

	id, events, err := e.HandleTurn(context.Background(), sessions, "", "hello", false)
	require.NoError(t, err)
	drain(events)

	history, err := sessions.History(id)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

// TestHandleTurnDoesNotAppendAssistantMessageOnFailure checks that a
// turn erring before generation produces no attributable assistant
// content in history.
func TestHandleTurnDoesNotAppendAssistantMessageOnFailure(t *testing.T) {
	e := NewEngine(nil, RetrievalDeps{}, &fakeGenerator{failBefore: true})
	sessions := session.NewManager()

	id, events, err := e.HandleTurn(context.Background(), sessions, "", "hello", false)
	require.NoError(t, err)
	drain(events)

	history, err := sessions.History(id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "hello", history[0].Content)
}

// TestHandleTurnSerializesTurnsPerSession checks that turns against
// the same session id never interleave.
func TestHandleTurnSerializesTurnsPerSession(t *testing.T) {
	e := NewEngine(nil, RetrievalDeps{}, &fakeGenerator{deltas: []string{"a"}})
	sessions := session.NewManager()

	id, firstEvents, err := e.HandleTurn(context.Background(), sessions, "", "first", false)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, secondEvents, err := e.HandleTurn(context.Background(), sessions, id, "second", false)
		require.NoError(t, err)
		drain(secondEvents)
		close(done)
	}()

	// Drain the first turn after a short delay so the second turn's
	// lock acquisition genuinely waits on it.
	time.Sleep(10 * time.Millisecond)
	drain(firstEvents)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second turn never completed")
	}

	history, err := sessions.History(id)
	require.NoError(t, err)
	require.Len(t, history, 4)
}
