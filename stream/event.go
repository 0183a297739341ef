// Package stream implements the streaming adapter: it converts the
// hybrid retrieval state machine's output into an ordered, framed event
// stream for an HTTP caller, owning back-pressure and cancellation.
package stream

import (
	"encoding/json"

	"github.com/eduassist/tutorbridge/domain"
)

// Type identifies which of the four event shapes an Event carries.
type Type string

const (
	// TypeChunk carries one text delta. Zero or more per turn.
	TypeChunk Type = "chunk"
	// TypeSources summarizes attributed sources. Exactly one per turn,
	// emitted after all TypeChunk events.
	TypeSources Type = "sources"
	// TypeDone is the terminal success event. Exactly one of
	// TypeDone/TypeError per turn.
	TypeDone Type = "done"
	// TypeError is the terminal failure event.
	TypeError Type = "error"
)

// Event is one unit of the agent's output, in the wire shape the HTTP
// streaming surface documents. Only the fields relevant to Type are
// populated; MarshalJSON emits exactly the JSON schema documented on
// MarshalJSON.
type Event struct {
	Type Type

	// Content is set on TypeChunk.
	Content string

	// PDFSources, WebSources, RouteUsed are set on TypeSources.
	PDFSources []domain.RetrievedChunk
	WebSources []domain.WebResult
	RouteUsed  domain.Route

	// Message is set on TypeError.
	Message string
}

// Chunk builds a TypeChunk event.
func Chunk(content string) Event { return Event{Type: TypeChunk, Content: content} }

// Sources builds a TypeSources event.
func Sources(pdf []domain.RetrievedChunk, web []domain.WebResult, route domain.Route) Event {
	return Event{Type: TypeSources, PDFSources: pdf, WebSources: web, RouteUsed: route}
}

// Done builds the terminal success event.
func Done() Event { return Event{Type: TypeDone} }

// Error builds the terminal failure event with a user-safe message;
// internal error detail is never leaked to the caller.
func Error(message string) Event { return Event{Type: TypeError, Message: message} }

// MarshalJSON renders the event in its documented wire shape:
//
//	{"type": "chunk", "content": "..."}
//	{"type": "sources", "pdf_sources": [...], "web_sources": [...], "route_used": "..."}
//	{"type": "done"}
//	{"type": "error", "message": "..."}
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeChunk:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{string(e.Type), e.Content})
	case TypeSources:
		return json.Marshal(struct {
			Type       string                  `json:"type"`
			PDFSources []domain.RetrievedChunk `json:"pdf_sources"`
			WebSources []domain.WebResult      `json:"web_sources"`
			RouteUsed  domain.Route            `json:"route_used"`
		}{string(e.Type), nonNil(e.PDFSources), nonNilWeb(e.WebSources), e.RouteUsed})
	case TypeError:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{string(e.Type), e.Message})
	default:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{string(e.Type)})
	}
}

// nonNil/nonNilWeb ensure the sources event always serializes its
// arrays as `[]`, never `null`.
func nonNil(s []domain.RetrievedChunk) []domain.RetrievedChunk {
	if s == nil {
		return []domain.RetrievedChunk{}
	}
	return s
}

func nonNilWeb(s []domain.WebResult) []domain.WebResult {
	if s == nil {
		return []domain.WebResult{}
	}
	return s
}
