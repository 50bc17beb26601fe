package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maibvn/pal/internal/model"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) ModelName() string { return "openai:text-embedding-ada-002" }

type memStore struct {
	items map[string]*model.EmbeddingCache
}

func (m *memStore) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	item, ok := m.items[modelName+taskType+contentHash]
	if !ok {
		return nil, false, nil
	}
	return item.Embedding, true, nil
}

func (m *memStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	m.items[item.ModelName+item.TaskType+item.ContentHash] = item
	return nil
}

func TestLruCache_HitsSkipProvider(t *testing.T) {
	inner := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(inner, 16, time.Minute)
	ctx := context.Background()

	first, err := e.Embed(ctx, "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	first[0] = 99 // callers must not be able to poison the cache

	second, err := e.Embed(ctx, "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, []float32{5, 1}, second)
	require.Equal(t, 1, inner.calls)

	_, err = e.Embed(ctx, "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestLruCache_ErrorsAreNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	e := WrapLruCacheToEmbedder(inner, 16, time.Minute)
	_, err := e.Embed(context.Background(), "x", "")
	require.Error(t, err)
	_, err = e.Embed(context.Background(), "x", "")
	require.Error(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestWrapLruCache_DisabledReturnsInner(t *testing.T) {
	inner := &countingEmbedder{}
	require.Same(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
}

func TestDBCache_PersistsAndReuses(t *testing.T) {
	inner := &countingEmbedder{}
	store := &memStore{items: map[string]*model.EmbeddingCache{}}
	e := WrapDBCacheToEmbedder(inner, store)
	ctx := context.Background()

	_, err := e.Embed(ctx, "chunk text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Len(t, store.items, 1)
	for _, item := range store.items {
		require.Equal(t, "openai:text-embedding-ada-002", item.ModelName)
		require.Len(t, item.ContentHash, 64)
	}

	vec, err := e.Embed(ctx, "chunk text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, []float32{10, 1}, vec)
	require.Equal(t, 1, inner.calls)
}
