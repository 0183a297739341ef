package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
)

// Defaults mirror the environment configuration table: CHUNK_TOKENS,
// CHUNK_OVERLAP_TOKENS, MIN_CHARS, MAX_DIGIT_RATIO.
const (
	DefaultChunkTokens        = 800
	DefaultChunkOverlapTokens = 100
	DefaultMinChars           = 100
	DefaultMaxDigitRatio      = 0.5
)

// separators is the priority-ordered list the recursive splitter
// descends through: paragraph, line, sentence, clause, space, character.
// A segment is only split by the next separator down the list when it
// is still larger than the token budget after splitting by the current
// one.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

// Chunker splits page text into overlapping, token-bounded,
// sentence-aware chunks, filters low-quality ones, and enriches the
// survivors with chapter/section/content-type/subject metadata.
type Chunker struct {
	chunkTokens   int
	overlapTokens int
	minChars      int
	maxDigitRatio float64
	counter       rag.TokenCounter
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

func WithChunkTokens(n int) ChunkerOption        { return func(c *Chunker) { c.chunkTokens = n } }
func WithOverlapTokens(n int) ChunkerOption      { return func(c *Chunker) { c.overlapTokens = n } }
func WithMinChars(n int) ChunkerOption           { return func(c *Chunker) { c.minChars = n } }
func WithMaxDigitRatio(r float64) ChunkerOption  { return func(c *Chunker) { c.maxDigitRatio = r } }
func WithTokenCounter(tc rag.TokenCounter) ChunkerOption {
	return func(c *Chunker) { c.counter = tc }
}

// NewChunker builds a Chunker with spec defaults. It tries the tiktoken
// cl100k_base encoding first and falls back to a chars/4 estimator if
// the tokenizer vocabulary cannot be loaded.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkTokens:   DefaultChunkTokens,
		overlapTokens: DefaultChunkOverlapTokens,
		minChars:      DefaultMinChars,
		maxDigitRatio: DefaultMaxDigitRatio,
	}
	if tc, err := rag.NewTikTokenCounter("cl100k_base"); err == nil {
		c.counter = tc
	} else {
		rag.GlobalLogger.Warn("tiktoken encoding unavailable, falling back to chars/4 estimator", "error", err)
		c.counter = charsPer4Counter{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type charsPer4Counter struct{}

func (charsPer4Counter) Count(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// span back-maps a byte offset in the concatenated document text to the
// page it came from.
type span struct {
	start int
	page  int
}

// Chunk splits the pages of one document into Chunks. Pages are
// concatenated in order, in a way that preserves a back-map from each
// output chunk to the page its first character came from.
func (c *Chunker) Chunk(pages []domain.Page) []domain.Chunk {
	if len(pages) == 0 {
		return nil
	}

	var full strings.Builder
	var spans []span
	for _, p := range pages {
		spans = append(spans, span{start: full.Len(), page: p.PageIndex})
		full.WriteString(p.RawText)
		full.WriteString("\n\n")
	}
	text := full.String()
	source := pages[0].Source

	raw := c.split(text, 0, separators)
	chunks := c.buildOverlappingChunks(raw)

	var out []domain.Chunk
	for _, rc := range chunks {
		trimmed := strings.TrimSpace(rc.text)
		if len(trimmed) < c.minChars {
			continue
		}
		if digitRatio(trimmed) > c.maxDigitRatio {
			continue
		}
		out = append(out, domain.Chunk{
			Text: trimmed,
			Metadata: domain.ChunkMetadata{
				Source: source,
				Page:   pageForOffset(spans, rc.offset),
			},
		})
	}

	for i := range out {
		out[i].Metadata.ChunkIndex = i
		out[i].Metadata.TotalChunks = len(out)
		enrich(&out[i])
		out[i].ID = stableChunkID(source, i, out[i].Text)
	}
	return out
}

type rawChunk struct {
	text   string
	offset int
}

// split recursively descends the separator list: it joins segments
// produced by the current separator into token-budget-sized groups,
// descending to the next separator only for a segment that alone still
// exceeds the budget.
func (c *Chunker) split(text string, baseOffset int, seps []string) []rawChunk {
	if c.counter.Count(text) <= c.chunkTokens || len(seps) == 0 {
		return []rawChunk{{text: text, offset: baseOffset}}
	}

	sep := seps[0]
	var parts []string
	var offsets []int
	if sep == "" {
		for i, r := range text {
			parts = append(parts, string(r))
			offsets = append(offsets, i)
		}
	} else {
		idx := 0
		for {
			at := strings.Index(text[idx:], sep)
			if at < 0 {
				parts = append(parts, text[idx:])
				offsets = append(offsets, idx)
				break
			}
			end := idx + at + len(sep)
			parts = append(parts, text[idx:end])
			offsets = append(offsets, idx)
			idx = end
		}
	}

	var result []rawChunk
	var group strings.Builder
	groupOffset := -1
	flush := func() {
		if group.Len() == 0 {
			return
		}
		seg := group.String()
		if c.counter.Count(seg) > c.chunkTokens && len(seps) > 1 {
			result = append(result, c.split(seg, groupOffset, seps[1:])...)
		} else {
			result = append(result, rawChunk{text: seg, offset: groupOffset})
		}
		group.Reset()
		groupOffset = -1
	}

	for i, part := range parts {
		candidate := group.String() + part
		if group.Len() > 0 && c.counter.Count(candidate) > c.chunkTokens {
			flush()
		}
		if groupOffset < 0 {
			groupOffset = offsets[i]
		}
		group.WriteString(part)
	}
	flush()
	return result
}

type overlapChunk struct {
	text   string
	offset int
}

// buildOverlappingChunks prepends a sentence-boundary tail of the
// previous chunk to each subsequent chunk, targeting overlapTokens.
func (c *Chunker) buildOverlappingChunks(raw []rawChunk) []overlapChunk {
	out := make([]overlapChunk, 0, len(raw))
	for i, rc := range raw {
		text := rc.text
		if i > 0 {
			tail := c.sentenceBoundaryTail(raw[i-1].text, c.overlapTokens)
			if tail != "" {
				text = tail + " " + text
			}
		}
		out = append(out, overlapChunk{text: text, offset: rc.offset})
	}
	return out
}

// sentenceBoundaryTail returns the suffix of prev that is at or before a
// sentence boundary and contains approximately overlapTokens tokens.
func (c *Chunker) sentenceBoundaryTail(prev string, overlapTokens int) string {
	if overlapTokens <= 0 {
		return ""
	}
	sentences := rag.SmartSentenceSplitter(prev)
	if len(sentences) == 0 {
		return ""
	}
	tokens := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0 && tokens < overlapTokens; i-- {
		tokens += c.counter.Count(sentences[i])
		start = i
	}
	return strings.Join(sentences[start:], " ")
}

func pageForOffset(spans []span, offset int) int {
	page := spans[0].page
	for _, s := range spans {
		if offset >= s.start {
			page = s.page
		} else {
			break
		}
	}
	return page
}

func digitRatio(text string) float64 {
	var alnum, digits int
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
			alnum++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			alnum++
		}
	}
	if alnum == 0 {
		return 0
	}
	return float64(digits) / float64(alnum)
}

var (
	chapterRe = regexp.MustCompile(`(?i)chapter\s+(\d+)`)
	sectionRe = regexp.MustCompile(`(\d+)\.(\d+)\s+([A-Z][^\n.]{3,60})`)
	problemRe = regexp.MustCompile(`(?i)\b(exercise|problem|question)\b`)
	exampleRe = regexp.MustCompile(`(?i)\b(example|ex\.\s)\b`)
	introRe   = regexp.MustCompile(`(?i)\b(introduction|chapter)\b`)
	mathRe    = regexp.MustCompile(`(\\[a-zA-Z]+|[0-9]/[0-9]|\^[0-9]|[=+\-*/]{1}\s*[0-9]|[√∞π])`)
)

// enrich classifies a chunk's content type, detects chapter/section
// structure and math, and infers the subject from the source path.
func enrich(chunk *domain.Chunk) {
	text := chunk.Text
	if m := chapterRe.FindStringSubmatch(text); m != nil {
		fmt.Sscanf(m[1], "%d", &chunk.Metadata.Chapter)
		chunk.Metadata.HasChapter = true
	}
	if m := sectionRe.FindStringSubmatch(text); m != nil {
		chunk.Metadata.Section = fmt.Sprintf("%s.%s %s", m[1], m[2], strings.TrimSpace(m[3]))
	}

	switch {
	case problemRe.MatchString(text):
		chunk.Metadata.ContentType = domain.ContentProblem
	case exampleRe.MatchString(text):
		chunk.Metadata.ContentType = domain.ContentExample
	case introRe.MatchString(text):
		chunk.Metadata.ContentType = domain.ContentIntroduction
	default:
		chunk.Metadata.ContentType = domain.ContentExplanation
	}

	chunk.Metadata.HasMath = mathRe.MatchString(text)
	chunk.Metadata.Subject = inferSubject(chunk.Metadata.Source)
}

var subjectKeywords = map[string]string{
	"algebra":   "mathematics",
	"calculus":  "mathematics",
	"geometry":  "mathematics",
	"math":      "mathematics",
	"physics":   "physics",
	"chemistry": "chemistry",
	"biology":   "biology",
	"history":   "history",
}

func inferSubject(source string) string {
	lower := strings.ToLower(source)
	for kw, subject := range subjectKeywords {
		if strings.Contains(lower, kw) {
			return subject
		}
	}
	return ""
}

// stableChunkID derives an idempotent identifier for a chunk: the same
// (source, chunk_index, text) always produces the same id, so ingesting
// a document twice upserts rather than duplicates.
func stableChunkID(source string, index int, text string) string {
	return fmt.Sprintf("%s#%d#%x", source, index, fnv32(text))
}

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h *= prime32
		h ^= uint32(s[i])
	}
	return h
}
