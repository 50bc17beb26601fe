package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/maibvn/pal/internal/db"
	"github.com/maibvn/pal/internal/model"
	appErr "github.com/maibvn/pal/internal/pkg/errors"
)

const documentTable = "documents"

var documentFields = []string{"id", "filename", "original_name", "mime_type", "size", "content", "metadata", "status", "uploaded_at", "processed_at", "processing_started_at"}

type DocumentRepo struct {
	db *db.DB
}

func NewDocumentRepo(d *db.DB) *DocumentRepo {
	return &DocumentRepo{db: d}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	meta, err := encodeJSON(doc.Metadata)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":                    doc.ID,
		"filename":              doc.Filename,
		"original_name":         doc.OriginalName,
		"mime_type":             doc.MimeType,
		"size":                  doc.Size,
		"metadata":              meta,
		"status":                string(doc.Status),
		"uploaded_at":           doc.UploadedAt,
		"processed_at":          doc.ProcessedAt,
		"processing_started_at": doc.ProcessingStartedAt,
	}
	sqlStr, args, err := builder.BuildInsert(documentTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.Finalize(sqlStr, args)
	_, err = r.db.Conn(ctx).ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	docs, err := r.query(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return docs[0], nil
}

// List returns every document, newest first. Content is left empty.
func (r *DocumentRepo) List(ctx context.Context) ([]*model.Document, error) {
	docs, err := r.query(ctx, map[string]interface{}{"_orderby": "uploaded_at desc"})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		d.Content = ""
	}
	return docs, nil
}

func (r *DocumentRepo) ListByStatus(ctx context.Context, status model.DocumentStatus) ([]*model.Document, error) {
	return r.query(ctx, map[string]interface{}{"status": string(status), "_orderby": "uploaded_at asc"})
}

// ListProcessingStartedBefore returns documents whose current processing run began before the cutoff.
func (r *DocumentRepo) ListProcessingStartedBefore(ctx context.Context, before int64) ([]*model.Document, error) {
	return r.query(ctx, map[string]interface{}{
		"status":                  string(model.DocumentStatusProcessing),
		"processing_started_at <": before,
		"_orderby":                "processing_started_at asc",
	})
}

func (r *DocumentRepo) query(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect(documentTable, where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.Finalize(sqlStr, args)
	rows, err := r.db.Conn(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Document
	for rows.Next() {
		var doc model.Document
		var content, meta sql.NullString
		var status string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.OriginalName, &doc.MimeType, &doc.Size, &content, &meta, &status, &doc.UploadedAt, &doc.ProcessedAt, &doc.ProcessingStartedAt); err != nil {
			return nil, err
		}
		doc.Content = content.String
		doc.Status = model.DocumentStatus(status)
		doc.Metadata = map[string]interface{}{}
		if err := decodeJSON(meta, &doc.Metadata); err != nil {
			return nil, err
		}
		out = append(out, &doc)
	}
	return out, rows.Err()
}

// UpdateStatus sets status. Moving to processing starts a new run stamped with the current time.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus) error {
	if status == model.DocumentStatusProcessing {
		return r.StartProcessing(ctx, id, time.Now().UnixMilli())
	}
	return r.update(ctx, id, map[string]interface{}{"status": string(status)})
}

// StartProcessing hands the document to a new run identified by startedAt.
func (r *DocumentRepo) StartProcessing(ctx context.Context, id string, startedAt int64) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":                string(model.DocumentStatusProcessing),
		"processing_started_at": startedAt,
	})
}

// SaveOutcome stores the terminal outcome of doc and runs fn in the same transaction.
// With owned set, the write only lands while the run stamped doc.ProcessingStartedAt still
// holds the document in processing; otherwise nothing is written and false is returned.
func (r *DocumentRepo) SaveOutcome(ctx context.Context, doc *model.Document, owned bool, fn func(ctx context.Context) error) (bool, error) {
	update, err := resultFields(doc)
	if err != nil {
		return false, err
	}
	where := map[string]interface{}{"id": doc.ID}
	if owned {
		where["status"] = string(model.DocumentStatusProcessing)
		where["processing_started_at"] = doc.ProcessingStartedAt
	}
	applied := false
	err = r.db.InTx(ctx, func(ctx context.Context) error {
		affected, err := r.updateWhere(ctx, where, update)
		if err != nil || affected == 0 {
			return err
		}
		applied = true
		if fn == nil {
			return nil
		}
		return fn(ctx)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func resultFields(doc *model.Document) (map[string]interface{}, error) {
	meta, err := encodeJSON(doc.Metadata)
	if err != nil {
		return nil, err
	}
	update := map[string]interface{}{
		"status":       string(doc.Status),
		"metadata":     meta,
		"processed_at": doc.ProcessedAt,
	}
	if doc.Status == model.DocumentStatusCompleted {
		update["content"] = doc.Content
	}
	return update, nil
}

func (r *DocumentRepo) update(ctx context.Context, id string, update map[string]interface{}) error {
	affected, err := r.updateWhere(ctx, map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) updateWhere(ctx context.Context, where, update map[string]interface{}) (int64, error) {
	sqlStr, args, err := builder.BuildUpdate(documentTable, where, update)
	if err != nil {
		return 0, err
	}
	sqlStr, args = r.db.Finalize(sqlStr, args)
	result, err := r.db.Conn(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete(documentTable, map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.Finalize(sqlStr, args)
	result, err := r.db.Conn(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

type DocumentStatusCount struct {
	Status model.DocumentStatus
	Count  int
	Size   int64
}

func (r *DocumentRepo) CountByStatus(ctx context.Context) ([]DocumentStatusCount, error) {
	sqlStr, args := r.db.Finalize("SELECT status, COUNT(*), COALESCE(SUM(size), 0) FROM documents GROUP BY status ORDER BY status", nil)
	rows, err := r.db.Conn(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DocumentStatusCount
	for rows.Next() {
		var item DocumentStatusCount
		var status string
		if err := rows.Scan(&status, &item.Count, &item.Size); err != nil {
			return nil, err
		}
		item.Status = model.DocumentStatus(status)
		out = append(out, item)
	}
	return out, rows.Err()
}
