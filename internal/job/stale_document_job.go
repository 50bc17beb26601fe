package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/maibvn/pal/internal/model"
	"github.com/maibvn/pal/internal/repo"
)

const staleDocumentError = "processing timed out"

// ChunkIndex drops the in-memory chunks of a document.
type ChunkIndex interface {
	RemoveChunksForDocument(documentID string) int
}

// StaleDocumentJob fails documents whose processing run has gone on longer than maxAge,
// e.g. because a restart killed it mid-task.
type StaleDocumentJob struct {
	docs   *repo.DocumentRepo
	chunks *repo.ChunkRepo
	index  ChunkIndex
	maxAge time.Duration
	now    func() time.Time
}

func NewStaleDocumentJob(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, index ChunkIndex, maxAge time.Duration) *StaleDocumentJob {
	return &StaleDocumentJob{docs: docs, chunks: chunks, index: index, maxAge: maxAge, now: time.Now}
}

func (j *StaleDocumentJob) Name() string {
	return "stale_documents"
}

func (j *StaleDocumentJob) Run(ctx context.Context) error {
	if j.docs == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	now := j.now()
	docs, err := j.docs.ListProcessingStartedBefore(ctx, now.Add(-maxAge).UnixMilli())
	if err != nil {
		return err
	}
	for _, doc := range docs {
		logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))
		if doc.Metadata == nil {
			doc.Metadata = map[string]interface{}{}
		}
		doc.Metadata["error"] = staleDocumentError
		doc.Status = model.DocumentStatusFailed
		doc.ProcessedAt = now.UnixMilli()
		// the run may finish or be replaced between the listing and this write
		applied, err := j.docs.SaveOutcome(ctx, doc, true, j.dropChunks(doc.ID))
		if err != nil {
			return err
		}
		if !applied {
			logger.Debug("stale candidate changed before update, skip")
			continue
		}
		if j.index != nil {
			j.index.RemoveChunksForDocument(doc.ID)
		}
		logger.Warn("stale document marked failed", zap.Int64("run", doc.ProcessingStartedAt))
	}
	return nil
}

func (j *StaleDocumentJob) dropChunks(docID string) func(ctx context.Context) error {
	if j.chunks == nil {
		return nil
	}
	return func(ctx context.Context) error {
		_, err := j.chunks.DeleteByDocument(ctx, docID)
		return err
	}
}
