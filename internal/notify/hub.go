// Package notify pushes live sync notifications to a user's open
// connections.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventUserSynced         = "user.synced"
	EventSubscriptionSynced = "subscription.synced"
)

const clientBuffer = 16

type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// Publisher is the narrow view reconcilers depend on.
type Publisher interface {
	Publish(userID string, ev Event) int
}

type Client struct {
	ID     uuid.UUID
	UserID string
	send   chan Event
}

// Events is closed by Unregister.
func (c *Client) Events() <-chan Event {
	return c.send
}

// Hub is a registry of live connections keyed by connection id. Clients are
// added on connect and removed on disconnect; nothing is broadcast to
// connections of other users.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		logger:  logger.Named("notify"),
	}
}

func (h *Hub) Register(userID string) *Client {
	c := &Client{
		ID:     uuid.New(),
		UserID: userID,
		send:   make(chan Event, clientBuffer),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("client registered",
		zap.String("client_id", c.ID.String()),
		zap.String("user_id", userID),
		zap.Int("clients", n),
	)
	return c
}

// Unregister removes the connection and closes its channel. Safe to call
// more than once.
func (h *Hub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()

	if ok {
		h.logger.Debug("client unregistered", zap.String("client_id", id.String()))
	}
}

// Publish delivers ev to every connection of userID and returns how many
// accepted it. A client whose buffer is full misses the event.
func (h *Hub) Publish(userID string, ev Event) int {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.clients {
		if c.UserID != userID {
			continue
		}
		select {
		case c.send <- ev:
			delivered++
		default:
			h.logger.Warn("dropping notification, client buffer full",
				zap.String("client_id", c.ID.String()),
				zap.String("event", ev.Type),
			)
		}
	}
	return delivered
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
