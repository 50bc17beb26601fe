package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/maibvn/pal/internal/metrics"
	"github.com/maibvn/pal/internal/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	DefaultLimit     = 5
	DefaultThreshold = 0.3
	queryTaskType    = "RETRIEVAL_QUERY"
)

// ChunkSource loads every persisted chunk with its embedding.
type ChunkSource interface {
	ListAllWithEmbedding(ctx context.Context) ([]*model.Chunk, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

type Stats struct {
	TotalChunks      int `json:"totalChunks"`
	TotalDocuments   int `json:"totalDocuments"`
	AverageChunkSize int `json:"averageChunkSize"`
}

// Index is the in-memory similarity index over all chunks. Mutations swap the slice
// so readers holding a snapshot are never disturbed.
type Index struct {
	source   ChunkSource
	embedder Embedder

	mu      sync.RWMutex
	entries []*model.Chunk
	loaded  bool
}

func New(source ChunkSource, embedder Embedder) *Index {
	return &Index{source: source, embedder: embedder}
}

// Load replaces the in-memory set with the persisted chunks.
func (x *Index) Load(ctx context.Context) error {
	chunks, err := x.source.ListAllWithEmbedding(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	x.mu.Lock()
	x.entries = chunks
	x.loaded = true
	x.mu.Unlock()
	metrics.ChunksIndexed.Set(float64(len(chunks)))
	logutil.GetLogger(ctx).Info("similarity index loaded", zap.Int("chunks", len(chunks)))
	return nil
}

func (x *Index) snapshot(ctx context.Context) []*model.Chunk {
	x.mu.RLock()
	entries, loaded := x.entries, x.loaded
	x.mu.RUnlock()
	if loaded && len(entries) > 0 {
		return entries
	}
	if err := x.Load(ctx); err != nil {
		logutil.GetLogger(ctx).Error("lazy load similarity index failed", zap.Error(err))
		return entries
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.entries
}

// Search ranks chunks by cosine similarity to the query and keeps those scoring at least
// threshold, which is used as given (zero or negative admits weaker matches). It never fails:
// an embedding error degrades to keyword scoring, and an empty index yields no results.
func (x *Index) Search(ctx context.Context, query string, limit int, threshold float64) []*model.ScoredChunk {
	if limit <= 0 {
		limit = DefaultLimit
	}
	entries := x.snapshot(ctx)
	if len(entries) == 0 {
		return nil
	}
	results, err := x.vectorSearch(ctx, entries, query, limit, threshold)
	if err != nil {
		logutil.GetLogger(ctx).Warn("vector search failed, use keyword search", zap.Error(err))
		metrics.RetrievalTotal.WithLabelValues("keyword").Inc()
		return keywordSearch(entries, query, limit)
	}
	return results
}

func (x *Index) vectorSearch(ctx context.Context, entries []*model.Chunk, query string, limit int, threshold float64) (out []*model.ScoredChunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("similarity panic: %v", r)
		}
	}()
	if x.embedder == nil {
		return nil, errors.New("no query embedder")
	}
	qvec, err := x.embedder.Embed(ctx, query, queryTaskType)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qvec) == 0 {
		return nil, errors.New("empty query embedding")
	}
	for _, c := range entries {
		sim := CosineSimilarity(qvec, c.Embedding)
		if sim < threshold {
			continue
		}
		out = append(out, &model.ScoredChunk{Chunk: *c, Similarity: sim})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	logutil.GetLogger(ctx).Debug("vector search finished", zap.Int("candidates", len(entries)), zap.Int("hits", len(out)))
	return out, nil
}

func (x *Index) AddChunk(c *model.Chunk) {
	if c == nil {
		return
	}
	x.mu.Lock()
	next := make([]*model.Chunk, 0, len(x.entries)+1)
	next = append(next, x.entries...)
	x.entries = append(next, c)
	size := len(x.entries)
	x.mu.Unlock()
	metrics.ChunksIndexed.Set(float64(size))
}

// RemoveChunksForDocument drops every entry owned by documentID and reports how many were removed.
func (x *Index) RemoveChunksForDocument(documentID string) int {
	x.mu.Lock()
	next := make([]*model.Chunk, 0, len(x.entries))
	for _, c := range x.entries {
		if c.DocumentID != documentID {
			next = append(next, c)
		}
	}
	removed := len(x.entries) - len(next)
	x.entries = next
	x.mu.Unlock()
	metrics.ChunksIndexed.Set(float64(len(next)))
	return removed
}

func (x *Index) Stats(ctx context.Context) Stats {
	x.mu.RLock()
	loaded := x.loaded
	x.mu.RUnlock()
	if !loaded {
		if err := x.Load(ctx); err != nil {
			logutil.GetLogger(ctx).Error("load similarity index for stats failed", zap.Error(err))
		}
	}
	x.mu.RLock()
	entries := x.entries
	x.mu.RUnlock()

	docs := make(map[string]struct{}, len(entries))
	total := 0
	for _, c := range entries {
		docs[c.DocumentID] = struct{}{}
		total += utf8.RuneCountInString(c.Content)
	}
	st := Stats{TotalChunks: len(entries), TotalDocuments: len(docs)}
	if len(entries) > 0 {
		st.AverageChunkSize = int(math.Round(float64(total) / float64(len(entries))))
	}
	return st
}
