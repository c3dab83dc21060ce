package share

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/repository"
)

// Link is a freshly created share and the URL viewers open.
type Link struct {
	URL   string       `json:"link"`
	Share models.Share `json:"share"`
}

// Manager performs share lifecycle transitions. It does not check chat
// ownership; callers do that before invoking it.
type Manager struct {
	repo    repository.ShareRepository
	hasher  Hasher
	baseURL string
	newKey  func() string
}

// NewManager builds a Manager whose links start with baseURL. Keys are random
// v4 UUIDs.
func NewManager(repo repository.ShareRepository, hasher Hasher, baseURL string) *Manager {
	return &Manager{
		repo:    repo,
		hasher:  hasher,
		baseURL: baseURL,
		newKey:  uuid.NewString,
	}
}

// URL is the public address of a share key.
func (m *Manager) URL(shareKey string) string {
	return m.baseURL + "/share/" + shareKey
}

// Create moves a chat from None to Public with a new random key.
func (m *Manager) Create(ctx context.Context, chatID int64, userID string) (*Link, error) {
	sh, err := m.repo.Create(ctx, chatID, userID, m.newKey())
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyShared
		}
		return nil, fmt.Errorf("create share: %w", err)
	}
	return &Link{URL: m.URL(sh.ShareKey), Share: *sh}, nil
}

// SetPassword protects the share with password, or makes it public again when
// password is nil or empty. The share key does not change. A password over
// MaxPasswordBytes returns ErrPasswordTooLong and nothing is written.
func (m *Manager) SetPassword(ctx context.Context, chatID int64, password *string) ([]models.Share, error) {
	var hash *string
	if password != nil && *password != "" {
		if len(*password) > MaxPasswordBytes {
			return nil, ErrPasswordTooLong
		}
		h, err := m.hasher.Hash(*password)
		if err != nil {
			if errors.Is(err, ErrPasswordTooLong) {
				return nil, err
			}
			return nil, fmt.Errorf("hash share password: %w", err)
		}
		hash = &h
	}

	shares, err := m.repo.SetPassword(ctx, chatID, hash)
	if err != nil {
		return nil, fmt.Errorf("set share password: %w", err)
	}
	if len(shares) == 0 {
		return nil, ErrNotShared
	}
	return shares, nil
}

// Delete returns the chat to None. Deleting an unshared chat is a no-op.
func (m *Manager) Delete(ctx context.Context, chatID int64) error {
	if _, err := m.repo.DeleteByChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	return nil
}

// Current returns the chat's share rows, zero or one in practice.
func (m *Manager) Current(ctx context.Context, chatID int64) ([]models.Share, error) {
	shares, err := m.repo.ListByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("fetch share: %w", err)
	}
	return shares, nil
}
