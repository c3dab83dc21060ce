package repository

import (
	"context"

	"github.com/lalith-99/aipdfly/internal/models"
)

// Conventions shared by every repository:
//
//   - context.Context first; the request context flows down to the query.
//   - Single-row reads return nil, nil when the row does not exist.
//   - List methods return an empty slice, never nil, so JSON renders [].
//   - Writes keyed by an external id are upserts or keyed updates, never blind
//     inserts, so webhook redelivery converges on the same row.
//   - Unique violations surface as ErrConflict (check with errors.Is).

// UserRepository handles the local mirror of identity-provider users.
type UserRepository interface {
	// Upsert inserts the user or overwrites the profile columns of the existing
	// row with the same ID. The role column is left untouched on conflict.
	Upsert(ctx context.Context, p models.UserProfile) (*models.User, error)

	// Update overwrites profile columns and role. Reports false when no row
	// has that ID.
	Update(ctx context.Context, p models.UserProfile, role models.Role) (bool, error)

	// UpdateRole changes only the role. Returns nil, nil if the user is absent.
	UpdateRole(ctx context.Context, userID string, role models.Role) (*models.User, error)

	GetByID(ctx context.Context, userID string) (*models.User, error)

	// List returns all users, newest first.
	List(ctx context.Context) ([]models.User, error)

	// Delete removes the user and everything it owns (subscription, chats,
	// their messages and shares) in one transaction. No-op if absent.
	Delete(ctx context.Context, userID string) error
}

// ChatRepository handles chats (one per uploaded PDF).
type ChatRepository interface {
	Create(ctx context.Context, userID, pdfName, pdfURL, fileKey string) (*models.Chat, error)
	GetByID(ctx context.Context, chatID int64) (*models.Chat, error)

	// ListByUser returns the user's chats, newest first.
	ListByUser(ctx context.Context, userID string) ([]models.Chat, error)

	// Rename reports false when the chat does not exist.
	Rename(ctx context.Context, chatID int64, pdfName string) (bool, error)

	// Delete removes the chat with its messages and shares in one transaction.
	Delete(ctx context.Context, chatID int64) error
}

// MessageRepository handles the append-only message log of a chat.
type MessageRepository interface {
	Create(ctx context.Context, chatID int64, role models.MessageRole, content string) (*models.Message, error)

	// ListByChat returns messages oldest first.
	ListByChat(ctx context.Context, chatID int64) ([]models.Message, error)
}

// SubscriptionRepository handles the local mirror of payment-provider state.
type SubscriptionRepository interface {
	// Create stores the subscription for s.UserID. A replayed checkout for the
	// same user overwrites the row instead of failing.
	Create(ctx context.Context, s models.Subscription) (*models.Subscription, error)

	// UpdateBySubscriptionID returns the number of rows touched. Zero means
	// the checkout has not been recorded yet.
	UpdateBySubscriptionID(ctx context.Context, subscriptionID string, u models.SubscriptionUpdate) (int64, error)

	// UpdateBillingAddressByCustomerID returns the number of rows touched.
	UpdateBillingAddressByCustomerID(ctx context.Context, customerID, address string) (int64, error)

	GetByUserID(ctx context.Context, userID string) (*models.Subscription, error)

	// ListWithUsers returns every subscription joined with its user, ordered
	// by user creation time, newest first.
	ListWithUsers(ctx context.Context) ([]models.UserSubscription, error)
}

// ShareRepository handles public share links.
type ShareRepository interface {
	// Create returns ErrConflict when the chat already has a share or the key
	// is taken.
	Create(ctx context.Context, chatID int64, userID, shareKey string) (*models.Share, error)

	// ListByChat returns the chat's shares (zero or one expected).
	ListByChat(ctx context.Context, chatID int64) ([]models.Share, error)

	// SetPassword stores hash (nil clears it) on every share of the chat and
	// returns the updated rows.
	SetPassword(ctx context.Context, chatID int64, hash *string) ([]models.Share, error)

	// DeleteByChat returns the number of rows removed.
	DeleteByChat(ctx context.Context, chatID int64) (int64, error)

	// GetSharedChat resolves a share key. Returns nil, nil when unknown.
	GetSharedChat(ctx context.Context, shareKey string) (*models.SharedChat, error)

	// ListWithChats returns shares joined with their chats, newest first.
	// An empty userID lists every share.
	ListWithChats(ctx context.Context, userID string) ([]models.SharedChat, error)
}
