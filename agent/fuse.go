package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eduassist/tutorbridge/domain"
)

// DefaultContextCharBudget mirrors CONTEXT_CHAR_BUDGET.
const DefaultContextCharBudget = 16000

// FusedContext is the fusion stage's output: a rendered prompt-ready
// string plus the exact sources it was built from, so the streaming
// adapter can emit a faithful sources event afterward.
type FusedContext struct {
	Text       string
	PDFSources []domain.RetrievedChunk
	WebSources []domain.WebResult
}

// Empty reports whether fusion produced no grounding at all, a case the
// generator needs to be told about explicitly.
func (f FusedContext) Empty() bool {
	return len(f.PDFSources) == 0 && len(f.WebSources) == 0
}

// Fuse builds the combined context for the generator: textbook sources
// first (to bias the generator toward the curated corpus), web sources
// after, each block ordered by descending score, truncated to
// charBudget by dropping the lowest-ranked item across both blocks
// first.
func Fuse(pdf []domain.RetrievedChunk, web []domain.WebResult, charBudget int) FusedContext {
	if charBudget <= 0 {
		charBudget = DefaultContextCharBudget
	}

	pdfSorted := append([]domain.RetrievedChunk(nil), pdf...)
	sort.SliceStable(pdfSorted, func(i, j int) bool { return pdfSorted[i].Score > pdfSorted[j].Score })
	webSorted := append([]domain.WebResult(nil), web...)
	sort.SliceStable(webSorted, func(i, j int) bool { return webSorted[i].Score > webSorted[j].Score })

	for {
		text := render(pdfSorted, webSorted)
		if len(text) <= charBudget || (len(pdfSorted) == 0 && len(webSorted) == 0) {
			return FusedContext{Text: text, PDFSources: pdfSorted, WebSources: webSorted}
		}

		dropWeb := len(webSorted) > 0 && (len(pdfSorted) == 0 ||
			webSorted[len(webSorted)-1].Score <= pdfSorted[len(pdfSorted)-1].Score)
		if dropWeb {
			webSorted = webSorted[:len(webSorted)-1]
		} else {
			pdfSorted = pdfSorted[:len(pdfSorted)-1]
		}
	}
}

func render(pdf []domain.RetrievedChunk, web []domain.WebResult) string {
	var b strings.Builder

	if len(pdf) > 0 {
		b.WriteString("[TEXTBOOK SOURCES]\n")
		for i, c := range pdf {
			fmt.Fprintf(&b, "(%d) %s — source=%s, page=%d", i+1, c.Text, c.Metadata.Source, c.Metadata.Page)
			if c.Metadata.HasChapter {
				fmt.Fprintf(&b, ", chapter=%d", c.Metadata.Chapter)
			}
			b.WriteString("\n")
		}
	}

	if len(web) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[WEB SOURCES]\n")
		for i, w := range web {
			fmt.Fprintf(&b, "(W%d) %s — %s", i+1, w.Title, w.URL)
			if w.PublishedDate != "" {
				fmt.Fprintf(&b, " — %s", w.PublishedDate)
			}
			b.WriteString("\n     " + w.Snippet + "\n")
		}
	}

	return b.String()
}
