package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/maibvn/pal/internal/db"
	"github.com/maibvn/pal/internal/model"
)

const chunkTable = "document_chunks"

var chunkFields = []string{"id", "document_id", "chunk_index", "content", "start_index", "end_index", "embedding", "metadata"}

type ChunkRepo struct {
	db *db.DB
}

func NewChunkRepo(d *db.DB) *ChunkRepo {
	return &ChunkRepo{db: d}
}

// ReplaceForDocument swaps the chunk set of a document in one transaction.
func (r *ChunkRepo) ReplaceForDocument(ctx context.Context, documentID string, chunks []*model.Chunk) error {
	return r.db.InTx(ctx, func(ctx context.Context) error {
		if _, err := r.DeleteByDocument(ctx, documentID); err != nil {
			return err
		}
		const insertSQL = "INSERT INTO document_chunks (id, document_id, chunk_index, content, start_index, end_index, embedding, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
		for _, c := range chunks {
			meta, err := encodeJSON(c.Metadata)
			if err != nil {
				return err
			}
			sqlStr, args := r.db.Finalize(insertSQL, []interface{}{
				c.ID, documentID, c.Metadata.ChunkIndex, c.Content, c.StartIndex, c.EndIndex, vectorValue(c.Embedding), meta,
			})
			if _, err := r.db.Conn(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ChunkRepo) ListAllWithEmbedding(ctx context.Context) ([]*model.Chunk, error) {
	return r.query(ctx, map[string]interface{}{"_orderby": "document_id asc, chunk_index asc"})
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	return r.query(ctx, map[string]interface{}{"document_id": documentID, "_orderby": "chunk_index asc"})
}

func (r *ChunkRepo) query(ctx context.Context, where map[string]interface{}) ([]*model.Chunk, error) {
	sqlStr, args, err := builder.BuildSelect(chunkTable, where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.Finalize(sqlStr, args)
	rows, err := r.db.Conn(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Chunk
	for rows.Next() {
		var c model.Chunk
		var index int
		var vec *pgvector.Vector
		var meta sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &index, &c.Content, &c.StartIndex, &c.EndIndex, &vec, &meta); err != nil {
			return nil, err
		}
		c.Embedding = vectorSlice(vec)
		if err := decodeJSON(meta, &c.Metadata); err != nil {
			return nil, err
		}
		c.Metadata.ChunkIndex = index
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, documentID string) (int, error) {
	sqlStr, args := r.db.Finalize("SELECT COUNT(*) FROM document_chunks WHERE document_id = ?", []interface{}{documentID})
	var count int
	if err := r.db.Conn(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	sqlStr, args, err := builder.BuildDelete(chunkTable, map[string]interface{}{"document_id": documentID})
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
