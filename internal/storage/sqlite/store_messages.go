package sqlite

import (
	"context"
	"fmt"
	"strings"

	chatdomain "github.com/banuni/haxor-mk2/internal/chat/domain"
)

// AppendMessage persists one chat message with a generated id.
func (s *Store) AppendMessage(ctx context.Context, fromName, fromRole, content string) (chatdomain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return chatdomain.ChatMessage{}, err
	}
	fromName = strings.TrimSpace(fromName)
	fromRole = strings.TrimSpace(fromRole)
	if fromName == "" {
		return chatdomain.ChatMessage{}, fmt.Errorf("author name is required")
	}
	if fromRole == "" {
		return chatdomain.ChatMessage{}, fmt.Errorf("author role is required")
	}

	messageID, err := s.newID()
	if err != nil {
		return chatdomain.ChatMessage{}, fmt.Errorf("generate message id: %w", err)
	}

	msg := chatdomain.ChatMessage{
		ID:        messageID,
		FromName:  fromName,
		FromRole:  fromRole,
		Content:   content,
		CreatedAt: s.clock().UTC(),
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO messages (id, from_name, from_role, content, created_at)
VALUES (?, ?, ?, ?, ?)
`,
		msg.ID,
		msg.FromName,
		msg.FromRole,
		msg.Content,
		msg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return chatdomain.ChatMessage{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns up to limit uncleared messages, oldest first.
// Creation-time ties break by insertion order.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]chatdomain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, from_name, from_role, content, created_at
FROM messages
WHERE cleared_at IS NULL
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var newestFirst []chatdomain.ChatMessage
	for rows.Next() {
		var msg chatdomain.ChatMessage
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.FromName, &msg.FromRole, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = millisUTC(createdAt)
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	messages := make([]chatdomain.ChatMessage, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		messages = append(messages, newestFirst[i])
	}
	return messages, nil
}

// SoftClearAll stamps cleared_at on every uncleared message. Messages are
// never physically removed.
func (s *Store) SoftClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE messages SET cleared_at = ? WHERE cleared_at IS NULL`,
		s.clock().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}
