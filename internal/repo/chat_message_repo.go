package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/maibvn/pal/internal/db"
	"github.com/maibvn/pal/internal/model"
	"github.com/maibvn/pal/internal/pkg/dbutil"
	appErr "github.com/maibvn/pal/internal/pkg/errors"
)

const chatMessageTable = "chat_messages"

var chatMessageFields = []string{"id", "session_id", "seq", "role", "content", "metadata", "created_at"}

type ChatMessageRepo struct {
	db *db.DB
}

func NewChatMessageRepo(d *db.DB) *ChatMessageRepo {
	return &ChatMessageRepo{db: d}
}

// Append inserts msg after the last message of its session and fills msg.Seq.
func (r *ChatMessageRepo) Append(ctx context.Context, msg *model.ChatMessage) error {
	var meta interface{}
	if msg.Metadata != nil {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return err
		}
		meta = string(raw)
	}
	const query = `
		INSERT INTO chat_messages (id, session_id, seq, role, content, metadata, created_at)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, CAST(? AS BIGINT) FROM chat_messages WHERE session_id = ?
	`
	sqlStr, args := r.db.Finalize(query, []interface{}{msg.ID, msg.SessionID, msg.Role, msg.Content, meta, msg.Timestamp, msg.SessionID})
	if _, err := r.db.Conn(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	seqSQL, seqArgs := r.db.Finalize("SELECT seq FROM chat_messages WHERE id = ?", []interface{}{msg.ID})
	return r.db.Conn(ctx).QueryRowContext(ctx, seqSQL, seqArgs...).Scan(&msg.Seq)
}

func (r *ChatMessageRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	where := map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "seq asc",
	}
	sqlStr, args, err := builder.BuildSelect(chatMessageTable, where, chatMessageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.Finalize(sqlStr, args)
	rows, err := r.db.Conn(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ChatMessage
	for rows.Next() {
		var msg model.ChatMessage
		var meta sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &msg.Role, &msg.Content, &meta, &msg.Timestamp); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			msg.Metadata = &model.MessageMetadata{}
			if err := json.Unmarshal([]byte(meta.String), msg.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (r *ChatMessageRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	sqlStr, args, err := builder.BuildDelete(chatMessageTable, map[string]interface{}{"session_id": sessionID})
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
