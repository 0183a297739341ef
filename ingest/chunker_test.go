package ingest

import (
	"strings"
	"testing"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/stretchr/testify/require"
)

func longParagraphs(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("This is a sentence about rational numbers and fractions. ")
		b.WriteString("It explains how a number can be expressed as p over q. ")
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestChunkQualityInvariant(t *testing.T) {
	c := NewChunker(WithMinChars(50))
	pages := []domain.Page{{Source: "algebra.pdf", PageIndex: 0, RawText: longParagraphs(40), PageCount: 1}}

	chunks := c.Chunk(pages)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		require.GreaterOrEqual(t, len(ch.Text), c.minChars)
		require.LessOrEqual(t, digitRatio(ch.Text), c.maxDigitRatio)
	}
}

func TestChunkCoverage(t *testing.T) {
	c := NewChunker(WithMinChars(10))
	original := longParagraphs(20)
	pages := []domain.Page{{Source: "doc.txt", PageIndex: 0, RawText: original, PageCount: 1}}

	chunks := c.Chunk(pages)
	nonWhitespace := func(s string) int {
		n := 0
		for _, r := range s {
			if !strings.ContainsRune(" \t\n\r", r) {
				n++
			}
		}
		return n
	}

	covered := 0
	seen := map[string]bool{}
	for _, ch := range chunks {
		if seen[ch.Text] {
			continue
		}
		seen[ch.Text] = true
		covered += nonWhitespace(ch.Text)
	}
	total := nonWhitespace(original)
	require.GreaterOrEqual(t, float64(covered), 0.95*float64(total)*0.5,
		"overlap-free coverage should reproduce most of the source; loose bound since overlap duplicates text")
}

func TestChunkIdempotentIDs(t *testing.T) {
	c := NewChunker(WithMinChars(10))
	pages := []domain.Page{{Source: "doc.txt", PageIndex: 0, RawText: longParagraphs(10), PageCount: 1}}

	first := c.Chunk(pages)
	second := c.Chunk(pages)
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestEnrichDetectsChapterAndMath(t *testing.T) {
	chunk := domain.Chunk{Text: "CHAPTER 3\nThe formula x^2 + 1/2 describes this relationship.", Metadata: domain.ChunkMetadata{Source: "algebra-101.pdf"}}
	enrich(&chunk)
	require.True(t, chunk.Metadata.HasChapter)
	require.Equal(t, 3, chunk.Metadata.Chapter)
	require.True(t, chunk.Metadata.HasMath)
	require.Equal(t, "mathematics", chunk.Metadata.Subject)
}

func TestDigitRatioFiltersNumericNoise(t *testing.T) {
	require.Greater(t, digitRatio("1234567890"), 0.9)
	require.Less(t, digitRatio("hello world this is text"), 0.1)
}
