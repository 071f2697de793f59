package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/messageapi/apiserver/types"
)

// MessageRepository handles persistence for messages.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, msg types.Message) (types.Message, error) {
	const query = `
		INSERT INTO messages (sender, recipient, content, file_path)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_read, created_at`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		msg.Sender,
		msg.Recipient,
		nullString(msg.Content),
		nullString(msg.FilePath),
	).Scan(&msg.ID, &msg.IsRead, &msg.CreatedAt); err != nil {
		if isValueTooLong(err) {
			return types.Message{}, ErrValueTooLong
		}
		return types.Message{}, fmt.Errorf("db error: %w", err)
	}
	return msg, nil
}

// ClaimUnread marks every unread message for recipient as read and returns
// them, oldest first.
//
// The read and the mark are a single UPDATE ... RETURNING statement. Each row
// is locked while it is updated and the is_read = FALSE predicate is
// re-checked after the lock is acquired, so when two callers race for the same
// recipient every message is returned by exactly one of them.
func (r *MessageRepository) ClaimUnread(ctx context.Context, recipient string) ([]types.Message, error) {
	const query = `
		WITH claimed AS (
			UPDATE messages
			SET is_read = TRUE
			WHERE recipient = $1 AND is_read = FALSE
			RETURNING id, sender, recipient, content, file_path, is_read, created_at
		)
		SELECT id, sender, recipient, content, file_path, is_read, created_at
		FROM claimed
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, recipient)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// History returns messages addressed to recipient, newest first, regardless
// of their read state. Offsets past the end yield an empty slice.
func (r *MessageRepository) History(ctx context.Context, recipient string, offset, limit int) ([]types.Message, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	const query = `
		SELECT id, sender, recipient, content, file_path, is_read, created_at
		FROM messages
		WHERE recipient = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, recipient, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *MessageRepository) CountUnread(ctx context.Context, recipient string) (int, error) {
	const query = `SELECT COUNT(1) FROM messages WHERE recipient = $1 AND is_read = FALSE`
	var total int
	if err := r.db.QueryRowContext(ctx, query, recipient).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

func scanMessages(rows *sql.Rows) ([]types.Message, error) {
	messages := make([]types.Message, 0)
	for rows.Next() {
		var msg types.Message
		var content, filePath sql.NullString
		if err := rows.Scan(
			&msg.ID,
			&msg.Sender,
			&msg.Recipient,
			&content,
			&filePath,
			&msg.IsRead,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		msg.Content = stringPtr(content)
		msg.FilePath = stringPtr(filePath)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return messages, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
