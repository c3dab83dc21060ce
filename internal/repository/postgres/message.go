package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/aipdfly/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Create(ctx context.Context, chatID int64, role models.MessageRole, content string) (*models.Message, error) {
	query := `
		INSERT INTO messages (chat_id, role, content, created_at)
		VALUES ($1, $2::user_system_enum, $3, now())
		RETURNING id, chat_id, role::text, content, created_at`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, chatID, string(role), content).Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.Role,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr("insert message", err)
	}
	return &msg, nil
}

// ListByChat orders by id: serial ids follow insertion order, which is the
// conversation order.
func (s *MessageStore) ListByChat(ctx context.Context, chatID int64) ([]models.Message, error) {
	query := `
		SELECT id, chat_id, role::text, content, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Role,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
