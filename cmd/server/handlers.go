package main

import (
	"io"
	"net/http"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/ingest"
	"github.com/eduassist/tutorbridge/session"
	"github.com/eduassist/tutorbridge/stream"
	"github.com/eduassist/tutorbridge/vectorstore"
	"github.com/gin-gonic/gin"
)

// ingestResponse is the documented shape for both /upload-pdf and
// /process-webpages: {status, details:{files_processed, total_chunks,
// filenames[]}}. Errors is additive — callers that only read the
// documented fields are unaffected, callers that want per-file detail
// get it.
type ingestResponse struct {
	Status  string        `json:"status"`
	Details ingestDetails `json:"details"`
}

type ingestDetails struct {
	FilesProcessed int             `json:"files_processed"`
	TotalChunks    int             `json:"total_chunks"`
	Filenames      []string        `json:"filenames"`
	Errors         []ingestFileErr `json:"errors,omitempty"`
}

type ingestFileErr struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

func (s *Server) handleUploadPDF(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form with a files field"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	inputs := make(map[string][]byte, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			logHandlerError("/upload-pdf", err)
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			logHandlerError("/upload-pdf", err)
			continue
		}
		inputs[fh.Filename] = data
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	outcomes := s.Orchestrator.Ingest(ctx, inputs)
	resp, code := buildIngestResponse(outcomes)
	c.JSON(code, resp)
}

type processWebpagesRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

func (s *Server) handleProcessWebpages(c *gin.Context) {
	var req processWebpagesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a non-empty urls array"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	outcomes := s.Orchestrator.IngestURLs(ctx, req.URLs)
	resp, code := buildIngestResponse(outcomes)
	c.JSON(code, resp)
}

// buildIngestResponse shapes a batch of FileOutcome into the documented
// response: overall status 200 ("success" or "partial") as long as at
// least one file succeeded, else a fatal response reporting only the
// failures.
func buildIngestResponse(outcomes []ingest.FileOutcome) (ingestResponse, int) {
	details := ingestDetails{Filenames: make([]string, 0, len(outcomes))}
	succeeded := 0

	for _, o := range outcomes {
		if o.Err != nil {
			details.Errors = append(details.Errors, ingestFileErr{Source: o.Source, Error: o.Err.Error()})
			continue
		}
		succeeded++
		details.FilesProcessed++
		details.TotalChunks += o.ChunksAdded
		details.Filenames = append(details.Filenames, o.Source)
	}

	if succeeded == 0 && len(outcomes) > 0 {
		return ingestResponse{Status: "failed", Details: details}, http.StatusInternalServerError
	}
	if len(details.Errors) > 0 {
		return ingestResponse{Status: "partial", Details: details}, http.StatusOK
	}
	return ingestResponse{Status: "success", Details: details}, http.StatusOK
}

type chatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
	UseRAG    *bool  `json:"use_rag"`
}

func useRAGOrDefault(req chatRequest) bool {
	if req.UseRAG == nil {
		return true
	}
	return *req.UseRAG
}

type sourcesDTO struct {
	PDFSources []domain.RetrievedChunk `json:"pdf_sources"`
	WebSources []domain.WebResult      `json:"web_sources"`
	RouteUsed  domain.Route            `json:"route_used"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sessionID, events, err := s.Engine.HandleTurn(ctx, s.Sessions, req.SessionID, req.Message, useRAGOrDefault(req))
	if err != nil {
		logHandlerError("/chat", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat engine unavailable"})
		return
	}

	answer, ev, hadDone := drainTurn(events)
	if !hadDone {
		c.JSON(http.StatusOK, gin.H{
			"response":   ev.Message,
			"session_id": sessionID,
		})
		return
	}

	resp := gin.H{"response": answer, "session_id": sessionID}
	if ev.Type == stream.TypeSources {
		resp["sources"] = sourcesDTO{PDFSources: ev.PDFSources, WebSources: ev.WebSources, RouteUsed: ev.RouteUsed}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	_, events, err := s.Engine.HandleTurn(ctx, s.Sessions, req.SessionID, req.Message, useRAGOrDefault(req))
	if err != nil {
		logHandlerError("/chat/stream", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat engine unavailable"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	stream.WriteSSE(c.Writer, c.Request.Context().Done(), events)
}

type queryRequest struct {
	Query string `json:"query" binding:"required"`
	K     int    `json:"k"`
}

type queryResultDTO struct {
	Content  string               `json:"content"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	results, err := s.Store.SearchByText(ctx, req.Query, req.K, vectorstore.Filter{})
	if err != nil {
		logHandlerError("/query", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]queryResultDTO, len(results))
	for i, r := range results {
		out[i] = queryResultDTO{Content: r.Text, Metadata: r.Metadata}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleHistory(c *gin.Context) {
	history, err := s.Sessions.History(c.Param("id"))
	if err != nil {
		s.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

func (s *Server) handleClear(c *gin.Context) {
	if err := s.Sessions.Clear(c.Param("id")); err != nil {
		s.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) respondSessionError(c *gin.Context, err error) {
	if _, ok := err.(*session.NotFoundError); ok {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	logHandlerError(c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (s *Server) handleClearVectorStore(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	removed, err := s.Store.DeleteAll(ctx)
	if err != nil {
		logHandlerError("/clear-vector-store", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear vector store"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
