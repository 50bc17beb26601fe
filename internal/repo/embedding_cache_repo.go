package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/maibvn/pal/internal/db"
	"github.com/maibvn/pal/internal/model"
)

type EmbeddingCacheRepo struct {
	db *db.DB
}

func NewEmbeddingCacheRepo(d *db.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: d}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	sqlStr, args := r.db.Finalize(
		"SELECT embedding FROM embedding_cache WHERE model_name = ? AND task_type = ? AND content_hash = ?",
		[]interface{}{modelName, taskType, contentHash},
	)
	var embedding pgvector.Vector
	if err := r.db.Conn(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(&embedding); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return embedding.Slice(), true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	if len(item.Embedding) == 0 {
		return nil
	}
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	sqlStr, args := r.db.Finalize(query, []interface{}{
		item.ModelName,
		item.TaskType,
		item.ContentHash,
		pgvector.NewVector(item.Embedding),
		item.Ctime,
	})
	_, err := r.db.Conn(ctx).ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args := r.db.Finalize("DELETE FROM embedding_cache WHERE ctime < ?", []interface{}{cutoff})
	res, err := r.db.Conn(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
