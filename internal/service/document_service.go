package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/maibvn/pal/internal/extract"
	"github.com/maibvn/pal/internal/filestore"
	"github.com/maibvn/pal/internal/index"
	"github.com/maibvn/pal/internal/model"
	appErr "github.com/maibvn/pal/internal/pkg/errors"
	"github.com/maibvn/pal/internal/repo"
	"github.com/maibvn/pal/internal/worker"
)

const contentPreviewChars = 500

type DocumentService struct {
	docs        *repo.DocumentRepo
	chunks      *repo.ChunkRepo
	files       filestore.Store
	index       *index.Index
	pipeline    *Pipeline
	runner      *worker.Runner
	maxFileSize int64
	now         func() time.Time
}

func NewDocumentService(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, files filestore.Store, idx *index.Index, pipeline *Pipeline, runner *worker.Runner, maxFileSize int64) *DocumentService {
	return &DocumentService{
		docs:        docs,
		chunks:      chunks,
		files:       files,
		index:       idx,
		pipeline:    pipeline,
		runner:      runner,
		maxFileSize: maxFileSize,
		now:         time.Now,
	}
}

type UploadInput struct {
	OriginalName string
	MimeType     string
	Size         int64
	Body         io.Reader
}

type DocumentStats struct {
	TotalDocuments    int            `json:"totalDocuments"`
	DocumentsByStatus map[string]int `json:"documentsByStatus"`
	TotalSize         int64          `json:"totalSize"`
	VectorStore       index.Stats    `json:"vectorStore"`
}

// Upload stores the file, records the document and hands it to the background pipeline.
// The returned document is already in status processing.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	mime, ok := extract.ResolveMime(in.MimeType, in.OriginalName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedType, in.MimeType)
	}
	if s.maxFileSize > 0 && in.Size > s.maxFileSize {
		return nil, appErr.ErrFileTooLarge
	}
	id := newID()
	doc := &model.Document{
		ID:           id,
		Filename:     id + strings.ToLower(filepath.Ext(in.OriginalName)),
		OriginalName: in.OriginalName,
		MimeType:     mime,
		Size:         in.Size,
		Metadata:     map[string]interface{}{},
		Status:       model.DocumentStatusPending,
		UploadedAt:   s.now().UnixMilli(),
	}
	if err := s.files.Save(ctx, doc.Filename, in.Body, in.Size); err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrUploadFailed, err)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		_ = s.files.Delete(ctx, doc.Filename)
		return nil, err
	}
	logutil.GetLogger(ctx).Info("document uploaded",
		zap.String("doc_id", doc.ID),
		zap.String("name", doc.OriginalName),
		zap.String("mime", doc.MimeType),
		zap.Int64("size", doc.Size),
	)
	if err := s.schedule(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// schedule marks the document processing and queues a pipeline run. Failures inside the
// run are recorded by the pipeline; onError covers runs that never start or panic.
func (s *DocumentService) schedule(ctx context.Context, doc *model.Document) error {
	run := nextRun(doc, s.now())
	if err := s.docs.StartProcessing(ctx, doc.ID, run); err != nil {
		return err
	}
	doc.Status = model.DocumentStatusProcessing
	doc.ProcessingStartedAt = run
	docID := doc.ID
	err := s.runner.Submit("process_document:"+docID, func(ctx context.Context) error {
		if err := s.pipeline.Process(ctx, docID); errors.Is(err, errNotStarted) {
			return err
		}
		return nil
	}, func(ctx context.Context, err error) {
		s.pipeline.Fail(ctx, docID, err)
	})
	if err != nil {
		s.pipeline.Fail(ctx, docID, err)
		return err
	}
	return nil
}

func (s *DocumentService) List(ctx context.Context) ([]*model.Document, error) {
	return s.docs.List(ctx)
}

// Get returns the document with its content cut to a short preview.
func (s *DocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Content = truncate(doc.Content, contentPreviewChars)
	return doc, nil
}

// Reprocess runs the pipeline again from the stored original.
func (s *DocumentService) Reprocess(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == model.DocumentStatusProcessing {
		return nil, fmt.Errorf("document is already being processed: %w", appErr.ErrConflict)
	}
	rc, err := s.files.Open(ctx, doc.Filename)
	if err != nil {
		if errors.Is(err, filestore.ErrNotExist) {
			err = fmt.Errorf("original file not found: %w", appErr.ErrNotFound)
			s.pipeline.Fail(ctx, doc.ID, err)
			return nil, err
		}
		return nil, err
	}
	_ = rc.Close()
	if err := s.schedule(ctx, doc); err != nil {
		return nil, err
	}
	doc.Content = ""
	return doc, nil
}

// Delete removes the document from the index, storage and the file store, in that order.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", id))
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	removed := s.index.RemoveChunksForDocument(id)
	if _, err := s.chunks.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, doc.Filename); err != nil {
		logger.Warn("delete stored file failed", zap.String("key", doc.Filename), zap.Error(err))
	}
	logger.Info("document deleted", zap.Int("index_chunks", removed))
	return nil
}

func (s *DocumentService) Stats(ctx context.Context) (*DocumentStats, error) {
	counts, err := s.docs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := &DocumentStats{
		DocumentsByStatus: map[string]int{},
		VectorStore:       s.index.Stats(ctx),
	}
	for _, c := range counts {
		out.TotalDocuments += c.Count
		out.TotalSize += c.Size
		out.DocumentsByStatus[string(c.Status)] = c.Count
	}
	return out, nil
}

// Open streams the original upload.
func (s *DocumentService) Open(ctx context.Context, id string) (*model.Document, io.ReadCloser, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.files.Open(ctx, doc.Filename)
	if err != nil {
		if errors.Is(err, filestore.ErrNotExist) {
			return nil, nil, fmt.Errorf("original file not found: %w", appErr.ErrNotFound)
		}
		return nil, nil, err
	}
	return doc, rc, nil
}

// ReprocessAll runs every document through the pipeline synchronously and reports
// how many completed.
func (s *DocumentService) ReprocessAll(ctx context.Context) (int, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return 0, err
	}
	ok := 0
	for _, doc := range docs {
		if err := s.pipeline.Process(ctx, doc.ID); err != nil {
			continue
		}
		ok++
	}
	return ok, nil
}
