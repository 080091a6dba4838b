package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SQLiteHistoryLog struct {
	db    *sql.DB
	users UserStore
}

func NewSQLiteHistoryLog(db *sql.DB, users UserStore) *SQLiteHistoryLog {
	return &SQLiteHistoryLog{db: db, users: users}
}

func (h *SQLiteHistoryLog) Append(ctx context.Context, roomID, senderID string, t MessageType, content string) (*Message, error) {
	createdAt := time.Now().UTC()
	query := `
	INSERT INTO messages (room_id, sender_id, type, content, created_at)
	VALUES (@room_id, @sender_id, @type, @content, @created_at) RETURNING id`
	row := h.db.QueryRowContext(ctx, query,
		sql.Named("room_id", roomID), sql.Named("sender_id", senderID),
		sql.Named("type", t), sql.Named("content", content),
		sql.Named("created_at", createdAt))

	var id int64
	if err := row.Scan(&id); err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return &Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  senderID,
		Type:      t,
		Content:   content,
		CreatedAt: createdAt,
	}, nil
}

func (h *SQLiteHistoryLog) List(ctx context.Context, roomID string) ([]MessageWithSender, error) {
	query := `
	SELECT id, room_id, sender_id, type, content, created_at
	FROM messages
	WHERE room_id = @room_id
	ORDER BY created_at ASC, id ASC`

	rows, err := h.db.QueryContext(ctx, query, sql.Named("room_id", roomID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Type, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return withSenders(ctx, h.users, messages)
}
