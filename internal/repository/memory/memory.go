// Package memory is an in-process implementation of the repository
// interfaces with the same cascade, upsert and conflict semantics as the
// postgres stores. Tests use it where a stateful store matters more than
// call expectations.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/repository"
)

// DB holds every table behind one mutex.
type DB struct {
	mu       sync.Mutex
	seq      int64
	users    map[string]models.User
	chats    map[int64]models.Chat
	messages []models.Message
	subs     map[string]models.Subscription
	shares   []models.Share

	Now func() time.Time
}

func New() *DB {
	return &DB{
		users: make(map[string]models.User),
		chats: make(map[int64]models.Chat),
		subs:  make(map[string]models.Subscription),
		Now:   time.Now,
	}
}

func (db *DB) next() int64 {
	db.seq++
	return db.seq
}

func (db *DB) Users() *UserStore { return &UserStore{db} }
func (db *DB) Chats() *ChatStore { return &ChatStore{db} }
func (db *DB) Messages() *MessageStore { return &MessageStore{db} }
func (db *DB) Subscriptions() *SubscriptionStore { return &SubscriptionStore{db} }
func (db *DB) Shares() *ShareStore { return &ShareStore{db} }

// Counts reports row totals, handy for asserting idempotence.
func (db *DB) Counts() (users, chats, messages, subs, shares int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), len(db.chats), len(db.messages), len(db.subs), len(db.shares)
}

// deleteChatLocked removes a chat with its messages and shares.
func (db *DB) deleteChatLocked(chatID int64) {
	msgs := db.messages[:0]
	for _, m := range db.messages {
		if m.ChatID != chatID {
			msgs = append(msgs, m)
		}
	}
	db.messages = msgs

	shares := db.shares[:0]
	for _, s := range db.shares {
		if s.ChatID != chatID {
			shares = append(shares, s)
		}
	}
	db.shares = shares

	delete(db.chats, chatID)
}

func conflict(op string) error {
	return fmt.Errorf("%s: %w", op, repository.ErrConflict)
}

var (
	_ repository.UserRepository         = (*UserStore)(nil)
	_ repository.ChatRepository         = (*ChatStore)(nil)
	_ repository.MessageRepository      = (*MessageStore)(nil)
	_ repository.SubscriptionRepository = (*SubscriptionStore)(nil)
	_ repository.ShareRepository        = (*ShareStore)(nil)
)

func sortByCreatedDesc(users []models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i].CreatedAt, users[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
