// Command server is the process entry point: it constructs every
// backend exactly once from config.Load, wires them into an
// agent.Engine, and serves the HTTP surface in server.go. Dependencies
// are built inline in main rather than through a DI container or
// package-level singleton.
package main

import (
	"context"
	"log"
	"time"

	"github.com/eduassist/tutorbridge/agent"
	"github.com/eduassist/tutorbridge/config"
	"github.com/eduassist/tutorbridge/embed"
	"github.com/eduassist/tutorbridge/ingest"
	"github.com/eduassist/tutorbridge/rag"
	"github.com/eduassist/tutorbridge/session"
	"github.com/eduassist/tutorbridge/vectorstore"
	"github.com/eduassist/tutorbridge/websearch"
	"github.com/gin-gonic/gin"
	"github.com/teilomillet/gollm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	rag.SetGlobalLogLevel(cfg.LogLevel)

	provider, err := embed.NewProvider("openai", map[string]interface{}{
		"api_key": cfg.OpenAIAPIKey,
		"model":   cfg.EmbeddingModel,
	})
	if err != nil {
		log.Fatalf("construct embedding provider: %v", err)
	}

	backend, err := newBackend(cfg, provider)
	if err != nil {
		log.Fatalf("construct vector store backend: %v", err)
	}
	store := vectorstore.NewStore(backend, provider)

	loader := ingest.NewLoader()
	chunker := ingest.NewChunker(
		ingest.WithChunkTokens(cfg.ChunkTokens),
		ingest.WithOverlapTokens(cfg.ChunkOverlapTokens),
		ingest.WithMinChars(cfg.MinChars),
		ingest.WithMaxDigitRatio(cfg.MaxDigitRatio),
	)
	batchEmbedder := embed.NewBatchEmbedder(provider,
		embed.WithBatchSize(cfg.EmbedBatch),
		embed.WithConcurrency(cfg.EmbedConcurrency),
	)
	orchestrator := ingest.NewOrchestrator(loader, chunker, batchEmbedder, store)

	llm, err := gollm.NewLLM(
		gollm.SetProvider("openai"),
		gollm.SetModel(cfg.LLMModel),
		gollm.SetAPIKey(cfg.OpenAIAPIKey),
		gollm.SetMaxRetries(3),
		gollm.SetRetryDelay(2*time.Second),
	)
	if err != nil {
		log.Fatalf("construct LLM: %v", err)
	}

	router := agent.NewRouter(agent.NewLLMClassifier(llm))

	var webTool websearch.Tool
	if cfg.UseHybridAgent {
		webTool = websearch.NewHTTPTool(cfg.WebSearchBaseURL)
	}

	deps := agent.RetrievalDeps{
		Store:              store,
		Web:                webTool,
		SearchK:            cfg.DefaultSearchK,
		RelevanceThreshold: cfg.RelevanceThreshold,
		WebResultsLimit:    cfg.WebSearchResultsLimit,
		WebDaysBack:        cfg.WebSearchDaysBack,
		RetrievalDeadline:  time.Duration(cfg.RetrievalDeadlineMS) * time.Millisecond,
	}

	engine := agent.NewEngine(router, deps, agent.NewGollmGenerator(llm))
	engine.ContextCharBudget = cfg.ContextCharBudget
	engine.TurnDeadline = time.Duration(cfg.TurnDeadlineMS) * time.Millisecond

	sessions := session.NewManager(session.WithMaxHistoryMessages(cfg.MaxHistoryMessages))

	srv := newServer(orchestrator, engine, sessions, store)

	gin.SetMode(gin.ReleaseMode)
	rag.GlobalLogger.Info("starting tutorbridge server", "port", 8080, "db_type", cfg.DBType)
	if err := srv.Routes().Run(":8080"); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// newBackend selects the vector repository backend by cfg.DBType,
// defaulting to the persistent chromem-go backend.
func newBackend(cfg *config.Config, provider embed.Provider) (vectorstore.Backend, error) {
	switch cfg.DBType {
	case "memory":
		return vectorstore.NewMemoryBackend(), nil
	case "milvus":
		address, _ := cfg.VectorDBConfig["address"].(string)
		dim, err := provider.GetDimension()
		if err != nil {
			return nil, err
		}
		return vectorstore.NewMilvusBackend(context.Background(), address, cfg.Collection, dim)
	default:
		return vectorstore.NewChromemBackend(cfg.ChromaPersistDir, cfg.Collection)
	}
}
