package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
	chromem "github.com/philippgille/chromem-go"
)

// ChromemBackend is the default persistent, single-process backend,
// rooted at CHROMA_PERSIST_DIR: a stable directory purgeable by
// removal. It talks to chromem-go directly rather than through a
// Milvus-shaped VectorDB wrapper, because that wrapping style assigns
// each document a positional integer id on Insert, which silently
// breaks idempotent upsert by chunk id. Using chromem-go's own
// Collection.AddDocument with the real chunk id as Document.ID keeps
// upserts idempotent.
//
// A local id set is tracked alongside the collection: chromem-go's
// public surface offers AddDocument/QueryEmbedding/Delete/Count but no
// bulk listing call, so DeleteAll and the inserted-vs-updated
// distinction are kept here rather than round-tripped through the
// collection itself.
type ChromemBackend struct {
	mu         sync.Mutex
	collection *chromem.Collection
	ids        map[string]struct{}
}

// noopEmbeddingFunc satisfies chromem's EmbeddingFunc signature. Vectors
// are always supplied by the caller via the embedding provider, so
// chromem itself never needs to embed anything.
func noopEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vectorstore: chromem embedding func should never be invoked; vectors are precomputed by the caller")
}

// NewChromemBackend opens (or creates) a persistent chromem-go database
// at dir and a single collection inside it.
func NewChromemBackend(dir, collectionName string) (*ChromemBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("vectorstore: prepare persist dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open chromem db at %s: %w", dir, err)
	}
	col, err := db.GetOrCreateCollection(collectionName, nil, noopEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create collection %s: %w", collectionName, err)
	}
	return &ChromemBackend{collection: col, ids: make(map[string]struct{})}, nil
}

func (c *ChromemBackend) Add(ctx context.Context, chunks []domain.Chunk) (domain.Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ack domain.Ack
	for _, chunk := range chunks {
		if err := c.collection.AddDocument(ctx, chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Text,
			Metadata:  metadataToStrings(chunk.Metadata),
			Embedding: toFloat32(chunk.Embedding),
		}); err != nil {
			return ack, fmt.Errorf("vectorstore: add chunk %s: %w", chunk.ID, err)
		}
		if _, existed := c.ids[chunk.ID]; existed {
			ack.Updated++
		} else {
			c.ids[chunk.ID] = struct{}{}
			ack.Inserted++
		}
	}
	return ack, nil
}

func (c *ChromemBackend) Search(ctx context.Context, vector []float64, k int, filter Filter) ([]domain.RetrievedChunk, error) {
	k = clampTopK(k)
	n := c.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	var where map[string]string
	if filter.Subject != "" {
		where = map[string]string{"subject": filter.Subject}
	}

	results, err := c.collection.QueryEmbedding(ctx, toFloat32(vector), k, where, nil)
	if err != nil {
		rag.GlobalLogger.Warn("chromem query failed", "error", err)
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	out := make([]domain.RetrievedChunk, 0, len(results))
	for _, r := range results {
		out = append(out, domain.RetrievedChunk{
			Chunk: domain.Chunk{
				ID:   r.ID,
				Text: r.Content,
				Metadata: domain.ChunkMetadata{
					Source:  r.Metadata["source"],
					Subject: r.Metadata["subject"],
				},
			},
			Score: (float64(r.Similarity) + 1) / 2,
		})
	}
	return out, nil
}

func (c *ChromemBackend) Size(ctx context.Context) (int, error) {
	return c.collection.Count(), nil
}

func (c *ChromemBackend) DeleteAll(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.ids)
	if n == 0 {
		return 0, nil
	}
	ids := make([]string, 0, n)
	for id := range c.ids {
		ids = append(ids, id)
	}
	if err := c.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("vectorstore: delete_all: %w", err)
	}
	c.ids = make(map[string]struct{})
	return n, nil
}

func metadataToStrings(m domain.ChunkMetadata) map[string]string {
	out := map[string]string{
		"source":       m.Source,
		"page":         strconv.Itoa(m.Page),
		"chunk_index":  strconv.Itoa(m.ChunkIndex),
		"total_chunks": strconv.Itoa(m.TotalChunks),
		"subject":      m.Subject,
		"section":      m.Section,
		"content_type": string(m.ContentType),
	}
	if m.HasChapter {
		out["chapter"] = strconv.Itoa(m.Chapter)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
