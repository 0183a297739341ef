// The HTTP adapter exposing the agent, session, and ingestion surface
// documented for the public API. It is intentionally small: every real
// decision (routing, retrieval, fusion, generation, session
// bookkeeping) lives in the agent/ingest/session packages; this file
// only binds HTTP requests to their calls and shapes the JSON
// responses, a single package main binary rather than a layered server
// package.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/eduassist/tutorbridge/agent"
	"github.com/eduassist/tutorbridge/ingest"
	"github.com/eduassist/tutorbridge/rag"
	"github.com/eduassist/tutorbridge/session"
	"github.com/eduassist/tutorbridge/stream"
	"github.com/eduassist/tutorbridge/vectorstore"
	"github.com/gin-gonic/gin"
)

// Server wires the HTTP surface to the already-constructed process
// services. A single Server is built once at startup (see main.go) and
// shares those services across every request.
type Server struct {
	Orchestrator *ingest.Orchestrator
	Engine       *agent.Engine
	Sessions     *session.Manager
	Store        *vectorstore.Store
}

// newServer builds a Server around its collaborators.
func newServer(orchestrator *ingest.Orchestrator, engine *agent.Engine, sessions *session.Manager, store *vectorstore.Store) *Server {
	return &Server{Orchestrator: orchestrator, Engine: engine, Sessions: sessions, Store: store}
}

// Routes builds the gin.Engine implementing the documented HTTP
// surface. gin.New (not gin.Default) installs Logger/Recovery
// explicitly rather than relying on gin's dev-mode default engine.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/upload-pdf", s.handleUploadPDF)
	r.POST("/process-webpages", s.handleProcessWebpages)
	r.POST("/chat", s.handleChat)
	r.POST("/chat/stream", s.handleChatStream)
	r.POST("/query", s.handleQuery)
	r.GET("/chat/history/:id", s.handleHistory)
	r.DELETE("/chat/clear/:id", s.handleClear)
	r.DELETE("/clear-vector-store", s.handleClearVectorStore)
	r.GET("/health", s.handleHealth)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// drainTurn reads every event from a turn's channel to completion,
// accumulating the full answer text and keeping the last
// sources/error event seen. /chat uses it directly; /chat/stream
// instead hands the same channel straight to stream.WriteSSE.
func drainTurn(events <-chan stream.Event) (answer string, ev stream.Event, hadDone bool) {
	var b []byte
	for e := range events {
		switch e.Type {
		case stream.TypeChunk:
			b = append(b, e.Content...)
		case stream.TypeSources, stream.TypeError:
			ev = e
		case stream.TypeDone:
			hadDone = true
		}
	}
	return string(b), ev, hadDone
}

// requestContext bounds a handler's work to the request's own
// cancellation plus a defensive upper bound, so a client that never
// disconnects can't pin a turn open forever.
func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 5*time.Minute)
}

func logHandlerError(route string, err error) {
	rag.GlobalLogger.Error("request failed", "route", route, "error", err)
}
