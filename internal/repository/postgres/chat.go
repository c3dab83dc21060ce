package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/aipdfly/internal/models"
)

type ChatStore struct {
	pool *pgxpool.Pool
}

func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

const chatColumns = `id, user_id, pdf_name, pdf_url, file_key, created_at`

func (s *ChatStore) Create(ctx context.Context, userID, pdfName, pdfURL, fileKey string) (*models.Chat, error) {
	query := `
		INSERT INTO chats (user_id, pdf_name, pdf_url, file_key, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING ` + chatColumns

	var ch models.Chat
	err := s.pool.QueryRow(ctx, query, userID, pdfName, pdfURL, fileKey).Scan(
		&ch.ID,
		&ch.UserID,
		&ch.PDFName,
		&ch.PDFURL,
		&ch.FileKey,
		&ch.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr("insert chat", err)
	}
	return &ch, nil
}

func (s *ChatStore) GetByID(ctx context.Context, chatID int64) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`

	var ch models.Chat
	err := s.pool.QueryRow(ctx, query, chatID).Scan(
		&ch.ID,
		&ch.UserID,
		&ch.PDFName,
		&ch.PDFURL,
		&ch.FileKey,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &ch, nil
}

func (s *ChatStore) ListByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		var ch models.Chat
		if err := rows.Scan(
			&ch.ID,
			&ch.UserID,
			&ch.PDFName,
			&ch.PDFURL,
			&ch.FileKey,
			&ch.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

func (s *ChatStore) Rename(ctx context.Context, chatID int64, pdfName string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE chats SET pdf_name = $2 WHERE id = $1`, chatID, pdfName)
	if err != nil {
		return false, fmt.Errorf("rename chat: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ChatStore) Delete(ctx context.Context, chatID int64) error {
	statements := []string{
		`DELETE FROM messages WHERE chat_id = $1`,
		`DELETE FROM shares WHERE chat_id = $1`,
		`DELETE FROM chats WHERE id = $1`,
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, chatID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapErr("delete chat", err)
	}
	return nil
}
