package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/maibvn/pal/internal/db"
	"github.com/maibvn/pal/internal/model"
	"github.com/maibvn/pal/internal/pkg/dbutil"
	appErr "github.com/maibvn/pal/internal/pkg/errors"
)

const chatSessionTable = "chat_sessions"

var chatSessionFields = []string{"id", "title", "created_at", "updated_at"}

type ChatSessionRepo struct {
	db *db.DB
}

func NewChatSessionRepo(d *db.DB) *ChatSessionRepo {
	return &ChatSessionRepo{db: d}
}

func (r *ChatSessionRepo) Create(ctx context.Context, s *model.ChatSession) error {
	data := map[string]interface{}{
		"id":         s.ID,
		"title":      s.Title,
		"created_at": s.CreatedAt,
		"updated_at": s.UpdatedAt,
	}
	sqlStr, args, err := builder.BuildInsert(chatSessionTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.Finalize(sqlStr, args)
	if _, err = r.db.Conn(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ChatSessionRepo) GetByID(ctx context.Context, id string) (*model.ChatSession, error) {
	sqlStr, args, err := builder.BuildSelect(chatSessionTable, map[string]interface{}{"id": id}, chatSessionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.Finalize(sqlStr, args)
	var s model.ChatSession
	err = r.db.Conn(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type ChatSessionSummary struct {
	model.ChatSession
	MessageCount int
	LastMessage  string
	LastRole     string
	LastAt       int64
}

// ListWithSummary returns sessions by last activity with their message count and latest message.
func (r *ChatSessionRepo) ListWithSummary(ctx context.Context) ([]*ChatSessionSummary, error) {
	const query = `
		SELECT s.id, s.title, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id),
			l.content, l.role, l.created_at
		FROM chat_sessions s
		LEFT JOIN chat_messages l ON l.session_id = s.id
			AND l.seq = (SELECT MAX(m.seq) FROM chat_messages m WHERE m.session_id = s.id)
		ORDER BY s.updated_at DESC
	`
	sqlStr, args := r.db.Finalize(query, nil)
	rows, err := r.db.Conn(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ChatSessionSummary
	for rows.Next() {
		var item ChatSessionSummary
		var last, role sql.NullString
		var lastAt sql.NullInt64
		if err := rows.Scan(&item.ID, &item.Title, &item.CreatedAt, &item.UpdatedAt, &item.MessageCount, &last, &role, &lastAt); err != nil {
			return nil, err
		}
		item.LastMessage = last.String
		item.LastRole = role.String
		item.LastAt = lastAt.Int64
		out = append(out, &item)
	}
	return out, rows.Err()
}

func (r *ChatSessionRepo) UpdateTitle(ctx context.Context, id, title string, now int64) error {
	return r.update(ctx, id, map[string]interface{}{"title": title, "updated_at": now})
}

func (r *ChatSessionRepo) Touch(ctx context.Context, id string, now int64) error {
	return r.update(ctx, id, map[string]interface{}{"updated_at": now})
}

func (r *ChatSessionRepo) update(ctx context.Context, id string, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate(chatSessionTable, map[string]interface{}{"id": id}, update)
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

func (r *ChatSessionRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete(chatSessionTable, map[string]interface{}{"id": id})
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
