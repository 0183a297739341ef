package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/eduassist/tutorbridge/rag"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusBackend is the opt-in production backend for deployments that
// already run a Milvus cluster, talking to it directly through the
// milvus-sdk-go client rather than through any intervening interface.
// Chunk ids are kept as the collection's varchar primary key, so
// upsert-by-id stays a plain Insert-replaces-by-primary-key operation
// with no numeric id translation layer.
type MilvusBackend struct {
	mu         sync.Mutex
	client     client.Client
	collection string
	dimension  int
}

const (
	milvusFieldID        = "id"
	milvusFieldText      = "text"
	milvusFieldEmbedding = "embedding"
	milvusFieldSubject   = "subject"

	milvusHNSWLayerConns  = 16
	milvusHNSWEfConstruct = 200
)

// NewMilvusBackend connects to address and ensures collection exists
// with the schema the vector repository needs: a varchar primary key
// (the chunk id), the chunk text, the embedding vector, and a subject
// column for filtering.
func NewMilvusBackend(ctx context.Context, address, collection string, dimension int) (*MilvusBackend, error) {
	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect to milvus at %s: %w", address, err)
	}

	m := &MilvusBackend{client: c, collection: collection, dimension: dimension}

	exists, err := c.HasCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: check milvus collection: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(collection).
			WithDescription("tutorbridge chunk index").
			WithField(entity.NewField().WithName(milvusFieldID).WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(512)).
			WithField(entity.NewField().WithName(milvusFieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(milvusFieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dimension))).
			WithField(entity.NewField().WithName(milvusFieldSubject).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))

		if err := c.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return nil, fmt.Errorf("vectorstore: create milvus collection: %w", err)
		}

		idx, err := entity.NewIndexHNSW(entity.IP, milvusHNSWLayerConns, milvusHNSWEfConstruct)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: build milvus index spec: %w", err)
		}
		if err := c.CreateIndex(ctx, collection, milvusFieldEmbedding, idx, false); err != nil {
			return nil, fmt.Errorf("vectorstore: create milvus index: %w", err)
		}
	}
	if err := c.LoadCollection(ctx, collection, false); err != nil {
		return nil, fmt.Errorf("vectorstore: load milvus collection: %w", err)
	}

	return m, nil
}

// Add upserts chunks into the collection. Milvus replaces a row whose
// primary key already exists on insert, so every chunk in the batch is
// reported as Inserted; distinguishing a true insert from an overwrite
// would need a pre-insert existence check per id, an extra round trip
// Milvus's API doesn't give for free.
func (m *MilvusBackend) Add(ctx context.Context, chunks []domain.Chunk) (domain.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	subjects := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		texts[i] = c.Text
		subjects[i] = c.Metadata.Subject
		vectors[i] = toFloat32(c.Embedding)
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnVarChar(milvusFieldText, texts),
		entity.NewColumnVarChar(milvusFieldSubject, subjects),
		entity.NewColumnFloatVector(milvusFieldEmbedding, m.dimension, vectors),
	}

	if _, err := m.client.Insert(ctx, m.collection, "", columns...); err != nil {
		return domain.Ack{}, fmt.Errorf("vectorstore: milvus insert: %w", err)
	}
	if err := m.client.Flush(ctx, m.collection, false); err != nil {
		rag.GlobalLogger.Warn("milvus flush failed", "error", err)
	}
	return domain.Ack{Inserted: len(chunks)}, nil
}

func (m *MilvusBackend) Search(ctx context.Context, vector []float64, k int, filter Filter) ([]domain.RetrievedChunk, error) {
	k = clampTopK(k)

	sp, err := entity.NewIndexHNSWSearchParam(k * 4)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: build milvus search param: %w", err)
	}

	expr := ""
	if filter.Subject != "" {
		expr = fmt.Sprintf("%s == %q", milvusFieldSubject, filter.Subject)
	}

	results, err := m.client.Search(ctx, m.collection, nil, expr,
		[]string{milvusFieldID, milvusFieldText, milvusFieldSubject},
		[]entity.Vector{entity.FloatVector(toFloat32(vector))},
		milvusFieldEmbedding, entity.IP, k, sp)
	if err != nil {
		rag.GlobalLogger.Warn("milvus search failed", "error", err)
		return nil, fmt.Errorf("vectorstore: milvus search: %w", err)
	}

	var out []domain.RetrievedChunk
	for _, rs := range results {
		idCol := rs.Fields.GetColumn(milvusFieldID)
		textCol := rs.Fields.GetColumn(milvusFieldText)
		subjectCol := rs.Fields.GetColumn(milvusFieldSubject)
		for i := 0; i < rs.ResultCount; i++ {
			out = append(out, domain.RetrievedChunk{
				Chunk: domain.Chunk{
					ID:       columnString(idCol, i),
					Text:     columnString(textCol, i),
					Metadata: domain.ChunkMetadata{Subject: columnString(subjectCol, i)},
				},
				Score: (float64(rs.Scores[i]) + 1) / 2,
			})
		}
	}
	return out, nil
}

func (m *MilvusBackend) Size(ctx context.Context) (int, error) {
	// The client surface this backend uses doesn't expose a row count;
	// an exact size would need a streaming count query this backend
	// doesn't issue. Callers that need an exact count should ask Milvus
	// directly.
	return 0, fmt.Errorf("vectorstore: milvus backend does not support size()")
}

func (m *MilvusBackend) DeleteAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.client.DropCollection(ctx, m.collection); err != nil {
		return 0, fmt.Errorf("vectorstore: drop milvus collection: %w", err)
	}
	return 0, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// columnString reads row i of an output column, tolerating a missing
// column or a read error by returning "" rather than panicking on a
// malformed search response.
func columnString(col entity.Column, i int) string {
	if col == nil {
		return ""
	}
	v, err := col.Get(i)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
