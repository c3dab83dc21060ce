package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/aipdfly/internal/models"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `user_id, username, email_address, first_name, last_name, image_url,
	phone_number, role::text, last_sign_in_at, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.EmailAddress,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.PhoneNumber,
		&u.Role,
		&u.LastSignInAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Upsert keys on user_id. Replaying the same profile leaves the row unchanged.
func (s *UserStore) Upsert(ctx context.Context, p models.UserProfile) (*models.User, error) {
	query := `
		INSERT INTO users (user_id, username, email_address, first_name, last_name,
			image_url, phone_number, last_sign_in_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			username        = EXCLUDED.username,
			email_address   = EXCLUDED.email_address,
			first_name      = EXCLUDED.first_name,
			last_name       = EXCLUDED.last_name,
			image_url       = EXCLUDED.image_url,
			phone_number    = EXCLUDED.phone_number,
			last_sign_in_at = EXCLUDED.last_sign_in_at,
			created_at      = EXCLUDED.created_at,
			updated_at      = EXCLUDED.updated_at
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, query,
		p.ID, p.Username, p.EmailAddress, p.FirstName, p.LastName,
		p.ImageURL, p.PhoneNumber, p.LastSignInAt, p.CreatedAt, p.UpdatedAt,
	))
	if err != nil {
		return nil, wrapErr("upsert user", err)
	}
	return u, nil
}

func (s *UserStore) Update(ctx context.Context, p models.UserProfile, role models.Role) (bool, error) {
	query := `
		UPDATE users SET
			username        = $2,
			email_address   = $3,
			first_name      = $4,
			last_name       = $5,
			image_url       = $6,
			phone_number    = $7,
			last_sign_in_at = $8,
			created_at      = $9,
			updated_at      = $10,
			role            = $11::user_role_enum
		WHERE user_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Username, p.EmailAddress, p.FirstName, p.LastName,
		p.ImageURL, p.PhoneNumber, p.LastSignInAt, p.CreatedAt, p.UpdatedAt,
		string(role),
	)
	if err != nil {
		return false, wrapErr("update user", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *UserStore) UpdateRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	query := `
		UPDATE users SET role = $2::user_role_enum
		WHERE user_id = $1
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, query, userID, string(role)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("update user role", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) List(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC NULLS LAST`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Delete cascades by hand: the schema has plain foreign keys, so children go
// first, all inside one transaction.
func (s *UserStore) Delete(ctx context.Context, userID string) error {
	statements := []string{
		`DELETE FROM messages WHERE chat_id IN (SELECT id FROM chats WHERE user_id = $1)`,
		`DELETE FROM shares WHERE user_id = $1 OR chat_id IN (SELECT id FROM chats WHERE user_id = $1)`,
		`DELETE FROM chats WHERE user_id = $1`,
		`DELETE FROM user_subscriptions WHERE user_id = $1`,
		`DELETE FROM users WHERE user_id = $1`,
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapErr("delete user", err)
	}
	return nil
}
