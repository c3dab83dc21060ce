package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/aipdfly/internal/models"
)

type ShareStore struct {
	pool *pgxpool.Pool
}

func NewShareStore(pool *pgxpool.Pool) *ShareStore {
	return &ShareStore{pool: pool}
}

const shareColumns = `s.id, s.chat_id, s.user_id, s.share_key, s.password, s.created_at`

func shareDest(sh *models.Share) []any {
	return []any{
		&sh.ID,
		&sh.ChatID,
		&sh.UserID,
		&sh.ShareKey,
		&sh.PasswordHash,
		&sh.CreatedAt,
	}
}

func chatDest(ch *models.Chat) []any {
	return []any{
		&ch.ID,
		&ch.UserID,
		&ch.PDFName,
		&ch.PDFURL,
		&ch.FileKey,
		&ch.CreatedAt,
	}
}

const joinedChatColumns = `c.id, c.user_id, c.pdf_name, c.pdf_url, c.file_key, c.created_at`

// Create relies on the unique index over shares(chat_id): a second link for the
// same chat fails with repository.ErrConflict instead of duplicating.
func (s *ShareStore) Create(ctx context.Context, chatID int64, userID, shareKey string) (*models.Share, error) {
	query := `
		INSERT INTO shares AS s (chat_id, user_id, share_key, password, created_at)
		VALUES ($1, $2, $3, NULL, now())
		RETURNING ` + shareColumns

	var sh models.Share
	if err := s.pool.QueryRow(ctx, query, chatID, userID, shareKey).Scan(shareDest(&sh)...); err != nil {
		return nil, wrapErr("insert share", err)
	}
	return &sh, nil
}

func (s *ShareStore) ListByChat(ctx context.Context, chatID int64) ([]models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares s WHERE s.chat_id = $1 ORDER BY s.id`

	rows, err := s.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	return collectShares(rows)
}

func (s *ShareStore) SetPassword(ctx context.Context, chatID int64, hash *string) ([]models.Share, error) {
	query := `
		UPDATE shares AS s SET password = $2
		WHERE s.chat_id = $1
		RETURNING ` + shareColumns

	rows, err := s.pool.Query(ctx, query, chatID, hash)
	if err != nil {
		return nil, fmt.Errorf("set share password: %w", err)
	}
	return collectShares(rows)
}

func (s *ShareStore) DeleteByChat(ctx context.Context, chatID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM shares WHERE chat_id = $1`, chatID)
	if err != nil {
		return 0, fmt.Errorf("delete shares: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *ShareStore) GetSharedChat(ctx context.Context, shareKey string) (*models.SharedChat, error) {
	query := `
		SELECT ` + shareColumns + `, ` + joinedChatColumns + `
		FROM shares s
		JOIN chats c ON c.id = s.chat_id
		WHERE s.share_key = $1`

	var sc models.SharedChat
	dest := append(shareDest(&sc.Share), chatDest(&sc.Chat)...)
	if err := s.pool.QueryRow(ctx, query, shareKey).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get shared chat: %w", err)
	}
	return &sc, nil
}

func (s *ShareStore) ListWithChats(ctx context.Context, userID string) ([]models.SharedChat, error) {
	query := `
		SELECT ` + shareColumns + `, ` + joinedChatColumns + `
		FROM shares s
		JOIN chats c ON c.id = s.chat_id
		WHERE $1::text = '' OR c.user_id = $1::text
		ORDER BY s.created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared chats: %w", err)
	}
	defer rows.Close()

	out := make([]models.SharedChat, 0)
	for rows.Next() {
		var sc models.SharedChat
		dest := append(shareDest(&sc.Share), chatDest(&sc.Chat)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan shared chat: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared chats: %w", err)
	}
	return out, nil
}

func collectShares(rows pgx.Rows) ([]models.Share, error) {
	defer rows.Close()

	shares := make([]models.Share, 0)
	for rows.Next() {
		var sh models.Share
		if err := rows.Scan(shareDest(&sh)...); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return shares, nil
}
