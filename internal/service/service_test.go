package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maibvn/pal/internal/ai"
	"github.com/maibvn/pal/internal/filestore"
	"github.com/maibvn/pal/internal/index"
	"github.com/maibvn/pal/internal/repo"
	"github.com/maibvn/pal/internal/testutil"
	"github.com/maibvn/pal/internal/worker"
)

type fakeGenerator struct {
	reply   string
	err     error
	history []ai.Message
	refs    []string
}

func (f *fakeGenerator) Reply(ctx context.Context, history []ai.Message, references []string) (*ai.Completion, error) {
	f.history = history
	f.refs = references
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Completion{
		Content:  f.reply,
		Model:    "fake-model",
		Provider: "fake",
		Usage:    ai.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
	}, nil
}

func (f *fakeGenerator) ProviderName() string { return "fake" }

type fixture struct {
	docs      *repo.DocumentRepo
	chunks    *repo.ChunkRepo
	messages  *repo.ChatMessageRepo
	files     filestore.Store
	index     *index.Index
	runner    *worker.Runner
	pipeline  *Pipeline
	documents *DocumentService
	chat      *ChatService
	gen       *fakeGenerator
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	chunkSize    int
	chunkOverlap int
	web          WebSearcher
	maxFileSize  int64
}

func withChunking(size, overlap int) fixtureOption {
	return func(c *fixtureConfig) { c.chunkSize, c.chunkOverlap = size, overlap }
}

func withWeb(w WebSearcher) fixtureOption {
	return func(c *fixtureConfig) { c.web = w }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := &fixtureConfig{chunkSize: 1000, chunkOverlap: 200, maxFileSize: 10 << 20}
	for _, opt := range opts {
		opt(cfg)
	}
	d := testutil.OpenTestDB(t)
	files := testutil.OpenTestStore(t)

	f := &fixture{
		docs:     repo.NewDocumentRepo(d),
		chunks:   repo.NewChunkRepo(d),
		messages: repo.NewChatMessageRepo(d),
		files:    files,
		runner:   worker.NewRunner(2),
		gen:      &fakeGenerator{reply: "Happy to help!"},
	}
	t.Cleanup(func() { f.runner.Close(0) })
	manager := ai.NewManager(nil, nil, ai.ManagerConfig{})
	f.index = index.New(f.chunks, ai.NewHashEmbedder())
	f.pipeline = NewPipeline(f.docs, f.chunks, files, f.index, manager, ai.NewChunker(cfg.chunkSize, cfg.chunkOverlap))
	f.documents = NewDocumentService(f.docs, f.chunks, files, f.index, f.pipeline, f.runner, cfg.maxFileSize)
	retrieval := NewRetrievalService(f.index, cfg.web, DefaultRetrievalConfig())
	f.chat = NewChatService(repo.NewChatSessionRepo(d), f.messages, retrieval, f.gen)
	return f
}

func (f *fixture) upload(t *testing.T, name, mime, body string) string {
	t.Helper()
	doc, err := f.documents.Upload(context.Background(), UploadInput{
		OriginalName: name,
		MimeType:     mime,
		Size:         int64(len(body)),
		Body:         strings.NewReader(body),
	})
	require.NoError(t, err)
	return doc.ID
}

func prose(words int) string {
	parts := make([]string, 0, words)
	for i := 0; i < words; i++ {
		parts = append(parts, fmt.Sprintf("word%04d", i))
	}
	return strings.Join(parts, " ")
}
