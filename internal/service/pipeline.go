package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/maibvn/pal/internal/ai"
	"github.com/maibvn/pal/internal/extract"
	"github.com/maibvn/pal/internal/filestore"
	"github.com/maibvn/pal/internal/index"
	"github.com/maibvn/pal/internal/metrics"
	"github.com/maibvn/pal/internal/model"
	appErr "github.com/maibvn/pal/internal/pkg/errors"
	"github.com/maibvn/pal/internal/repo"
)

const documentTaskType = ai.TaskRetrievalDocument

var (
	// errSuperseded means another run took over the document before this one finished.
	errSuperseded = errors.New("processing run superseded")
	// errNotStarted means the run stopped before it owned the document; nothing was recorded.
	errNotStarted = errors.New("processing run not started")
)

// ChunkEmbedder turns chunk text into a vector. An empty vector means the chunk cannot be indexed.
type ChunkEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) []float32
}

// Pipeline turns a stored upload into persisted, embedded chunks and refreshes the index.
type Pipeline struct {
	docs     *repo.DocumentRepo
	chunks   *repo.ChunkRepo
	files    filestore.Store
	index    *index.Index
	embedder ChunkEmbedder
	chunker  *ai.Chunker
	now      func() time.Time
}

func NewPipeline(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, files filestore.Store, idx *index.Index, embedder ChunkEmbedder, chunker *ai.Chunker) *Pipeline {
	return &Pipeline{
		docs:     docs,
		chunks:   chunks,
		files:    files,
		index:    idx,
		embedder: embedder,
		chunker:  chunker,
		now:      time.Now,
	}
}

// Process runs one document to a terminal status. The returned error has already been
// recorded on the document as status failed, unless a newer run owns the document.
func (p *Pipeline) Process(ctx context.Context, docID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", docID))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errNotStarted, err)
	}
	doc, err := p.docs.GetByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("%w: load document: %w", errNotStarted, err)
	}
	start := p.now()
	run := nextRun(doc, start)
	if err := p.docs.StartProcessing(ctx, docID, run); err != nil {
		return fmt.Errorf("%w: mark processing: %w", errNotStarted, err)
	}
	doc.Status = model.DocumentStatusProcessing
	doc.ProcessingStartedAt = run
	logger.Info("document processing started", zap.String("mime", doc.MimeType), zap.String("name", doc.OriginalName))
	if err := p.process(ctx, doc); err != nil {
		if errors.Is(err, errSuperseded) {
			logger.Warn("document run superseded, result dropped", zap.Int64("run", doc.ProcessingStartedAt))
			return err
		}
		p.fail(ctx, doc, err, true)
		return err
	}
	metrics.DocumentsProcessedTotal.WithLabelValues(string(model.DocumentStatusCompleted)).Inc()
	logger.Info("document processing finished", zap.Duration("duration", p.now().Sub(start)))
	return nil
}

// nextRun returns a run stamp newer than any the document has seen.
func nextRun(doc *model.Document, now time.Time) int64 {
	run := now.UnixMilli()
	if run <= doc.ProcessingStartedAt {
		run = doc.ProcessingStartedAt + 1
	}
	return run
}

// Fail records err on the document without running the pipeline. A document in processing
// is only failed while the run that was current at load time still owns it.
func (p *Pipeline) Fail(ctx context.Context, docID string, err error) {
	doc, gerr := p.docs.GetByID(ctx, docID)
	if gerr != nil {
		logutil.GetLogger(ctx).Error("load document for failure failed", zap.String("doc_id", docID), zap.Error(gerr))
		return
	}
	p.fail(ctx, doc, err, doc.Status == model.DocumentStatusProcessing)
}

// fail marks the document failed and drops its chunks so a failed document never serves context.
func (p *Pipeline) fail(ctx context.Context, doc *model.Document, cause error, owned bool) {
	// a cancelled run still has to leave its status behind
	ctx = context.WithoutCancel(ctx)
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))
	logger.Error("document processing failed", zap.Error(cause))
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	doc.Metadata["error"] = cause.Error()
	doc.Status = model.DocumentStatusFailed
	doc.ProcessedAt = p.now().UnixMilli()
	applied, err := p.docs.SaveOutcome(ctx, doc, owned, func(ctx context.Context) error {
		_, err := p.chunks.DeleteByDocument(ctx, doc.ID)
		return err
	})
	if err != nil {
		logger.Error("record failed status failed", zap.Error(err))
		return
	}
	if !applied {
		logger.Warn("document owned by a newer run, failure not recorded")
		return
	}
	p.index.RemoveChunksForDocument(doc.ID)
	metrics.DocumentsProcessedTotal.WithLabelValues(string(model.DocumentStatusFailed)).Inc()
}

func (p *Pipeline) process(ctx context.Context, doc *model.Document) error {
	if !extract.Supported(doc.MimeType) {
		return fmt.Errorf("%w: %s", appErr.ErrUnsupportedType, doc.MimeType)
	}
	path, cleanup, err := p.localCopy(ctx, doc)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := extract.Extract(ctx, path, doc.MimeType)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	windows := p.chunker.Split(res.Text)
	chunks := p.embedChunks(ctx, doc.ID, windows)

	processedAt := p.now().UnixMilli()
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	delete(doc.Metadata, "error")
	doc.Metadata["chunksCount"] = len(chunks)
	doc.Metadata["contentLength"] = utf8.RuneCountInString(res.Text)
	doc.Metadata["processedAt"] = processedAt
	if res.PageCount > 0 {
		doc.Metadata["pageCount"] = res.PageCount
	}
	doc.Content = res.Text
	doc.Status = model.DocumentStatusCompleted
	doc.ProcessedAt = processedAt
	applied, err := p.docs.SaveOutcome(ctx, doc, true, func(ctx context.Context) error {
		return p.chunks.ReplaceForDocument(ctx, doc.ID, chunks)
	})
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if !applied {
		return errSuperseded
	}

	p.index.RemoveChunksForDocument(doc.ID)
	for _, c := range chunks {
		p.index.AddChunk(c)
	}
	return nil
}

func (p *Pipeline) embedChunks(ctx context.Context, docID string, windows []ai.TextWindow) []*model.Chunk {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", docID))
	now := p.now().UnixMilli()
	out := make([]*model.Chunk, 0, len(windows))
	for i, w := range windows {
		vec := p.embedder.Embed(ctx, w.Content, documentTaskType)
		if len(vec) == 0 {
			logger.Warn("skip chunk without embedding", zap.Int("chunk_index", i))
			continue
		}
		out = append(out, &model.Chunk{
			ID:         newID(),
			DocumentID: docID,
			Content:    w.Content,
			StartIndex: w.StartIndex,
			EndIndex:   w.EndIndex,
			Embedding:  vec,
			Metadata: model.ChunkMetadata{
				ChunkIndex: i,
				WordCount:  w.WordCount,
				CreatedAt:  now,
			},
		})
		logger.Debug("chunk embedded", zap.Int("chunk_index", i), zap.Int("dims", len(vec)))
	}
	return out
}

// localCopy materialises the stored upload as a temp file for the extractors.
func (p *Pipeline) localCopy(ctx context.Context, doc *model.Document) (string, func(), error) {
	rc, err := p.files.Open(ctx, doc.Filename)
	if err != nil {
		if errors.Is(err, filestore.ErrNotExist) {
			return "", nil, fmt.Errorf("original file missing: %w", appErr.ErrNotFound)
		}
		return "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()
	tmp, err := os.CreateTemp("", "pal-*"+filepath.Ext(doc.OriginalName))
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}
