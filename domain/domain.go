// Package domain holds the data model shared by every component of the
// hybrid retrieval assistant: documents and chunks on the ingest side,
// routes, messages and sessions on the conversation side. Keeping these
// types here instead of on each component lets ingest, vectorstore,
// websearch, session, agent and stream all depend on one small, stable
// package instead of on each other.
package domain

import "time"

// Page is a single page of text extracted from a Document by the loader.
// PageCount is repeated on every page so downstream consumers never need
// to thread the parent document alongside a Page.
type Page struct {
	Source    string `json:"source"`
	PageIndex int    `json:"page"`
	RawText   string `json:"raw_text"`
	PageCount int    `json:"total_pages"`
}

// ContentType classifies the pedagogical role of a Chunk's text.
type ContentType string

const (
	ContentExplanation  ContentType = "explanation"
	ContentProblem      ContentType = "problem"
	ContentExample      ContentType = "example"
	ContentIntroduction ContentType = "introduction"
)

// ChunkMetadata carries everything about a Chunk that isn't the text
// itself: where it came from and what it's about.
type ChunkMetadata struct {
	Source      string      `json:"source"`
	Page        int         `json:"page"`
	ChunkIndex  int         `json:"chunk_index"`
	TotalChunks int         `json:"total_chunks"`
	Subject     string      `json:"subject,omitempty"`
	Chapter     int         `json:"chapter,omitempty"`
	HasChapter  bool        `json:"-"`
	Section     string      `json:"section,omitempty"`
	ContentType ContentType `json:"content_type,omitempty"`
	HasMath     bool        `json:"has_math"`
}

// Chunk is the unit of retrieval: a piece of chunked, quality-filtered
// document text, eventually embedded and stored by the vector repository.
type Chunk struct {
	ID        string        `json:"id"`
	Text      string        `json:"content"`
	Embedding []float64     `json:"-"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// RetrievedChunk is a Chunk returned from a similarity search, carrying
// the relevance score the repository computed for it. Score is always
// normalized to [0,1], higher is better, regardless of the backend's
// native metric.
type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// WebResult is a single hit from the web search tool.
type WebResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	PublishedDate string  `json:"published_date,omitempty"`
	Snippet       string  `json:"snippet"`
	Score         float64 `json:"score"`
}

// Route is the outcome of the router: which retrieval backends a turn
// should consult.
type Route string

const (
	RouteNone    Route = "NONE"
	RoutePDFOnly Route = "PDF_ONLY"
	RouteWebOnly Route = "WEB_ONLY"
	RouteBoth    Route = "BOTH"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn's worth of conversation content.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a bounded conversation history keyed by a UUIDv4 id. Sessions
// live only in process memory; there is no durable store (see Non-goals).
type Session struct {
	ID            string
	Messages      []Message
	CreatedAt     time.Time
	LastTouchedAt time.Time
}

// Ack is returned by the vector repository's Add to report how many
// chunks were newly inserted versus how many were idempotent no-op
// upserts of an existing id.
type Ack struct {
	Inserted int
	Updated  int
}
