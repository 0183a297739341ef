package agent

import (
	"strings"
	"testing"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/stretchr/testify/require"
)

func TestFuseOrdersTextbookBeforeWebAndByScore(t *testing.T) {
	pdf := []domain.RetrievedChunk{
		{Chunk: domain.Chunk{Text: "low score chunk", Metadata: domain.ChunkMetadata{Source: "a.pdf", Page: 1}}, Score: 0.3},
		{Chunk: domain.Chunk{Text: "high score chunk", Metadata: domain.ChunkMetadata{Source: "a.pdf", Page: 2}}, Score: 0.9},
	}
	web := []domain.WebResult{{Title: "web hit", URL: "https://example.com", Snippet: "s"}}

	fused := Fuse(pdf, web, DefaultContextCharBudget)

	textbookIdx := strings.Index(fused.Text, "[TEXTBOOK SOURCES]")
	webIdx := strings.Index(fused.Text, "[WEB SOURCES]")
	require.True(t, textbookIdx >= 0 && webIdx > textbookIdx)

	highIdx := strings.Index(fused.Text, "high score chunk")
	lowIdx := strings.Index(fused.Text, "low score chunk")
	require.True(t, highIdx >= 0 && highIdx < lowIdx)
}

func TestFuseEmptyWhenNoSources(t *testing.T) {
	fused := Fuse(nil, nil, DefaultContextCharBudget)
	require.True(t, fused.Empty())
	require.Empty(t, fused.Text)
}

func TestFuseTruncatesLowestRankedFirstWhenOverBudget(t *testing.T) {
	pdf := []domain.RetrievedChunk{
		{Chunk: domain.Chunk{Text: strings.Repeat("x", 200), Metadata: domain.ChunkMetadata{Source: "a.pdf"}}, Score: 0.9},
		{Chunk: domain.Chunk{Text: strings.Repeat("y", 200), Metadata: domain.ChunkMetadata{Source: "a.pdf"}}, Score: 0.1},
	}

	fused := Fuse(pdf, nil, 250)

	require.Len(t, fused.PDFSources, 1)
	require.Equal(t, 0.9, fused.PDFSources[0].Score)
	require.NotContains(t, fused.Text, strings.Repeat("y", 200))
}

func TestBuildUserPromptNotesMissingGrounding(t *testing.T) {
	prompt := BuildUserPrompt(nil, FusedContext{}, "What is in chapter 1?")
	require.Contains(t, prompt, "No information was found")
	require.Contains(t, prompt, "What is in chapter 1?")
}
