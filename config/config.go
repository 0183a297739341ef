// Package config provides a flexible configuration management system for
// the tutorbridge hybrid retrieval assistant. It handles configuration
// loading and persistence with support for multiple sources:
//   - Configuration files (JSON)
//   - Environment variables
//   - Programmatic defaults
//
// The package implements a hierarchical configuration system where settings
// can be overridden in the following order (highest to lowest precedence):
//  1. Environment variables
//  2. Configuration file
//  3. Default values
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/eduassist/tutorbridge/rag"
)

// Config holds all configuration for the assistant, matching the
// documented environment variable table.
type Config struct {
	// Provider settings configure the embedding and generative providers.
	OpenAIAPIKey     string  // OPENAI_API_KEY
	WebSearchAPIKey  string  // WEB_SEARCH_API_KEY
	WebSearchBaseURL string  // WEB_SEARCH_BASE_URL, a SearXNG-compatible instance
	EmbeddingModel   string  // EMBEDDING_MODEL
	LLMModel         string  // LLM_MODEL
	LLMTemperature   float64 // LLM_TEMPERATURE

	// UseHybridAgent toggles web retrieval on (BOTH/WEB_ONLY routes);
	// false behaves as if the web search tool is never consulted
	// regardless of route.
	UseHybridAgent bool // USE_HYBRID_AGENT

	// Chunking settings.
	ChunkTokens        int     // CHUNK_TOKENS
	ChunkOverlapTokens int     // CHUNK_OVERLAP_TOKENS
	MinChars           int     // MIN_CHARS
	MaxDigitRatio      float64 // MAX_DIGIT_RATIO

	// Retrieval settings.
	DefaultSearchK           int // DEFAULT_SEARCH_K
	RelevanceThreshold       float64 // RELEVANCE_THRESHOLD
	WebSearchResultsLimit    int // WEB_SEARCH_RESULTS_LIMIT
	WebSearchDaysBack        int // WEB_SEARCH_DAYS_BACK
	RetrievalDeadlineMS      int // RETRIEVAL_DEADLINE_MS
	TurnDeadlineMS           int // TURN_DEADLINE_MS
	ContextCharBudget        int // CONTEXT_CHAR_BUDGET

	// Session settings.
	MaxHistoryMessages int // MAX_HISTORY_MESSAGES

	// Vector store settings.
	ChromaPersistDir string            // CHROMA_PERSIST_DIR
	Collection       string
	DBType           string                 // "chromem" (default), "memory", "milvus"
	VectorDBConfig   map[string]interface{} // backend-specific settings (e.g. Milvus address)

	// Embedding batch settings.
	EmbedBatch       int // EMBED_BATCH
	EmbedConcurrency int // EMBED_CONCURRENCY

	// Timeouts and retries for system operations.
	Timeout    time.Duration
	MaxRetries int

	// LogLevel controls the verbosity of the global logger.
	LogLevel rag.LogLevel // LOG_LEVEL
}

// Defaults mirror the documented environment variable table.
const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultLLMTemperature = 0.7

	DefaultChunkTokens        = 800
	DefaultChunkOverlapTokens = 100
	DefaultMinChars           = 100
	DefaultMaxDigitRatio      = 0.5

	DefaultSearchK        = 4
	DefaultRelevanceScore = 0.2

	DefaultWebSearchResultsLimit = 3
	DefaultWebSearchDaysBack     = 90

	DefaultRetrievalDeadlineMS = 8000
	DefaultTurnDeadlineMS      = 60000
	DefaultContextCharBudget  = 16000

	DefaultMaxHistoryMessages = 10

	DefaultChromaPersistDir = "./chroma_db"
	DefaultCollection       = "tutorbridge_docs"
	DefaultWebSearchBaseURL = "https://searx.be"

	DefaultEmbedBatch       = 64
	DefaultEmbedConcurrency = 4
)

// Load builds a Config from defaults, overridden by a JSON file (if
// found), overridden by environment variables — in that precedence
// order.
//
// Configuration file search paths:
//  1. $TUTORBRIDGE_CONFIG environment variable
//  2. ~/.tutorbridge/config.json
//  3. ./tutorbridge.json
func Load() (*Config, error) {
	cfg := &Config{
		WebSearchBaseURL:      DefaultWebSearchBaseURL,
		EmbeddingModel:        DefaultEmbeddingModel,
		LLMModel:              DefaultLLMModel,
		LLMTemperature:        DefaultLLMTemperature,
		UseHybridAgent:        true,
		ChunkTokens:           DefaultChunkTokens,
		ChunkOverlapTokens:    DefaultChunkOverlapTokens,
		MinChars:              DefaultMinChars,
		MaxDigitRatio:         DefaultMaxDigitRatio,
		DefaultSearchK:        DefaultSearchK,
		RelevanceThreshold:    DefaultRelevanceScore,
		WebSearchResultsLimit: DefaultWebSearchResultsLimit,
		WebSearchDaysBack:     DefaultWebSearchDaysBack,
		RetrievalDeadlineMS:   DefaultRetrievalDeadlineMS,
		TurnDeadlineMS:        DefaultTurnDeadlineMS,
		ContextCharBudget:     DefaultContextCharBudget,
		MaxHistoryMessages:    DefaultMaxHistoryMessages,
		ChromaPersistDir:      DefaultChromaPersistDir,
		Collection:            DefaultCollection,
		DBType:                "chromem",
		VectorDBConfig:        make(map[string]interface{}),
		EmbedBatch:            DefaultEmbedBatch,
		EmbedConcurrency:      DefaultEmbedConcurrency,
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		LogLevel:              rag.LogLevelInfo,
	}

	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile() error {
	configFile := os.Getenv("TUTORBRIDGE_CONFIG")
	if configFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidates := []string{
				filepath.Join(home, ".tutorbridge", "config.json"),
				"tutorbridge.json",
			}
			for _, candidate := range candidates {
				if _, err := os.Stat(candidate); err == nil {
					configFile = candidate
					break
				}
			}
		}
	}
	if configFile == "" {
		return nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil
	}
	return json.Unmarshal(data, c)
}

// applyEnv overrides cfg with any environment variables present. A
// malformed numeric/bool/float override is neither logged nor reported:
// applyEnv silently keeps the previous value on parse failure, a
// permissive env-override style.
func (c *Config) applyEnv() {
	str(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	str(&c.WebSearchAPIKey, "WEB_SEARCH_API_KEY")
	str(&c.WebSearchBaseURL, "WEB_SEARCH_BASE_URL")
	str(&c.EmbeddingModel, "EMBEDDING_MODEL")
	str(&c.LLMModel, "LLM_MODEL")
	flt(&c.LLMTemperature, "LLM_TEMPERATURE")
	boolean(&c.UseHybridAgent, "USE_HYBRID_AGENT")

	integer(&c.ChunkTokens, "CHUNK_TOKENS")
	integer(&c.ChunkOverlapTokens, "CHUNK_OVERLAP_TOKENS")
	integer(&c.MinChars, "MIN_CHARS")
	flt(&c.MaxDigitRatio, "MAX_DIGIT_RATIO")

	integer(&c.DefaultSearchK, "DEFAULT_SEARCH_K")
	flt(&c.RelevanceThreshold, "RELEVANCE_THRESHOLD")
	integer(&c.WebSearchResultsLimit, "WEB_SEARCH_RESULTS_LIMIT")
	integer(&c.WebSearchDaysBack, "WEB_SEARCH_DAYS_BACK")
	integer(&c.RetrievalDeadlineMS, "RETRIEVAL_DEADLINE_MS")
	integer(&c.TurnDeadlineMS, "TURN_DEADLINE_MS")
	integer(&c.ContextCharBudget, "CONTEXT_CHAR_BUDGET")

	integer(&c.MaxHistoryMessages, "MAX_HISTORY_MESSAGES")
	str(&c.ChromaPersistDir, "CHROMA_PERSIST_DIR")
	str(&c.Collection, "CHROMA_COLLECTION")
	str(&c.DBType, "VECTOR_DB_TYPE")

	integer(&c.EmbedBatch, "EMBED_BATCH")
	integer(&c.EmbedConcurrency, "EMBED_CONCURRENCY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		_ = c.LogLevel.UnmarshalText([]byte(v))
	}
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func integer(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func flt(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func boolean(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Save persists the configuration to a JSON file at the specified path,
// creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
