package main

import (
	"errors"
	"net/http"
	"testing"

	"github.com/eduassist/tutorbridge/ingest"
	"github.com/eduassist/tutorbridge/stream"
	"github.com/stretchr/testify/require"
)

func TestBuildIngestResponseAllSucceed(t *testing.T) {
	outcomes := []ingest.FileOutcome{
		{Source: "a.pdf", ChunksAdded: 3},
		{Source: "b.pdf", ChunksAdded: 5},
	}

	resp, code := buildIngestResponse(outcomes)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "success", resp.Status)
	require.Equal(t, 2, resp.Details.FilesProcessed)
	require.Equal(t, 8, resp.Details.TotalChunks)
	require.Equal(t, []string{"a.pdf", "b.pdf"}, resp.Details.Filenames)
	require.Empty(t, resp.Details.Errors)
}

func TestBuildIngestResponsePartialFailure(t *testing.T) {
	outcomes := []ingest.FileOutcome{
		{Source: "a.pdf", ChunksAdded: 3},
		{Source: "bad.pdf", Err: errors.New("unsupported format")},
	}

	resp, code := buildIngestResponse(outcomes)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "partial", resp.Status)
	require.Equal(t, 1, resp.Details.FilesProcessed)
	require.Len(t, resp.Details.Errors, 1)
	require.Equal(t, "bad.pdf", resp.Details.Errors[0].Source)
}

func TestBuildIngestResponseAllFail(t *testing.T) {
	outcomes := []ingest.FileOutcome{
		{Source: "bad.pdf", Err: errors.New("unsupported format")},
	}

	resp, code := buildIngestResponse(outcomes)
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "failed", resp.Status)
	require.Equal(t, 0, resp.Details.FilesProcessed)
}

func TestUseRAGOrDefaultDefaultsTrue(t *testing.T) {
	require.True(t, useRAGOrDefault(chatRequest{}))

	f := false
	require.False(t, useRAGOrDefault(chatRequest{UseRAG: &f}))
}

func TestDrainTurnAccumulatesChunksAndKeepsLastSources(t *testing.T) {
	events := make(chan stream.Event, 4)
	events <- stream.Event{Type: stream.TypeChunk, Content: "hel"}
	events <- stream.Event{Type: stream.TypeChunk, Content: "lo"}
	events <- stream.Event{Type: stream.TypeSources, RouteUsed: "BOTH"}
	events <- stream.Event{Type: stream.TypeDone}
	close(events)

	answer, ev, hadDone := drainTurn(events)
	require.Equal(t, "hello", answer)
	require.True(t, hadDone)
	require.Equal(t, stream.TypeSources, ev.Type)
}

func TestDrainTurnWithoutDoneReportsNotDone(t *testing.T) {
	events := make(chan stream.Event, 1)
	events <- stream.Event{Type: stream.TypeError, Message: "boom"}
	close(events)

	_, ev, hadDone := drainTurn(events)
	require.False(t, hadDone)
	require.Equal(t, "boom", ev.Message)
}
