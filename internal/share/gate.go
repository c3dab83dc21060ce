package share

import (
	"context"
	"fmt"

	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/repository"
)

// Content is what an admitted viewer may read.
type Content struct {
	Share    models.Share     `json:"share"`
	Chat     models.Chat      `json:"chat"`
	Messages []models.Message `json:"messages"`
}

// Gate admits anonymous viewers to shared chats. It keeps no state between
// requests: every content read presents the password again.
type Gate struct {
	shares   repository.ShareRepository
	messages repository.MessageRepository
	hasher   Hasher
}

// NewGate returns a Gate that checks passwords with hasher.
func NewGate(shares repository.ShareRepository, messages repository.MessageRepository, hasher Hasher) *Gate {
	return &Gate{shares: shares, messages: messages, hasher: hasher}
}

// Resolve looks up a share key without checking any password.
func (g *Gate) Resolve(ctx context.Context, shareKey string) (*models.SharedChat, error) {
	if shareKey == "" {
		return nil, ErrNotFound
	}
	sc, err := g.shares.GetSharedChat(ctx, shareKey)
	if err != nil {
		return nil, fmt.Errorf("resolve share: %w", err)
	}
	if sc == nil {
		return nil, ErrNotFound
	}
	return sc, nil
}

// Unlock returns the shared chat's content when the share is public or
// candidate matches its password.
func (g *Gate) Unlock(ctx context.Context, shareKey, candidate string) (*Content, error) {
	sc, err := g.Resolve(ctx, shareKey)
	if err != nil {
		return nil, err
	}
	if sc.Share.Protected() && !g.hasher.Compare(*sc.Share.PasswordHash, candidate) {
		return nil, ErrIncorrectPassword
	}

	msgs, err := g.messages.ListByChat(ctx, sc.Chat.ID)
	if err != nil {
		return nil, fmt.Errorf("load shared messages: %w", err)
	}
	return &Content{Share: sc.Share, Chat: sc.Chat, Messages: msgs}, nil
}
