package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/aipdfly/internal/middleware"
	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/repository"
	"go.uber.org/zap"
)

// ObjectStore is where uploaded PDFs live.
type ObjectStore interface {
	PDFURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ChatHandler serves the signed-in user's own chats.
type ChatHandler struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	objects  ObjectStore
	logger   *zap.Logger
}

// NewChatHandler accepts a nil objects store; PDF deletion is then skipped.
func NewChatHandler(chats repository.ChatRepository, messages repository.MessageRepository, objects ObjectStore, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, messages: messages, objects: objects, logger: logger}
}

type renameChatRequest struct {
	PDFName string `json:"pdfName" binding:"required,max=255"`
}

// List handles GET /v1/chats
func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.chats.ListByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("failed to list chats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, chats)
}

// Messages handles GET /v1/chats/:id/messages
func (h *ChatHandler) Messages(c *gin.Context) {
	chat, ok := ownedChat(c, h.chats, h.logger, c.Param("id"))
	if !ok {
		return
	}

	msgs, err := h.messages.ListByChat(c.Request.Context(), chat.ID)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Int64("chat_id", chat.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Rename handles PATCH /v1/chats/:id
func (h *ChatHandler) Rename(c *gin.Context) {
	var req renameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, ok := ownedChat(c, h.chats, h.logger, c.Param("id"))
	if !ok {
		return
	}

	if _, err := h.chats.Rename(c.Request.Context(), chat.ID, req.PDFName); err != nil {
		h.logger.Error("failed to rename chat", zap.Int64("chat_id", chat.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rename chat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete handles DELETE /v1/chats/:id
//
// The chat, its messages and its share go in one transaction. The PDF is
// removed afterwards; failing that only leaves an orphaned object.
func (h *ChatHandler) Delete(c *gin.Context) {
	chat, ok := ownedChat(c, h.chats, h.logger, c.Param("id"))
	if !ok {
		return
	}

	if err := h.chats.Delete(c.Request.Context(), chat.ID); err != nil {
		h.logger.Error("failed to delete chat", zap.Int64("chat_id", chat.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete chat"})
		return
	}
	removeObjects(c.Request.Context(), h.objects, h.logger, *chat)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func removeObjects(ctx context.Context, objects ObjectStore, logger *zap.Logger, chats ...models.Chat) {
	if objects == nil {
		return
	}
	for _, ch := range chats {
		if err := objects.Delete(ctx, ch.FileKey); err != nil {
			logger.Warn("failed to delete pdf object",
				zap.Int64("chat_id", ch.ID),
				zap.String("file_key", ch.FileKey),
				zap.Error(err),
			)
		}
	}
}

func parseChatID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ownedChat loads the chat and checks the caller may manage it: its owner or
// an admin. It writes the error response itself and reports false when the
// handler should stop. Someone else's chat answers 404, same as a missing one.
func ownedChat(c *gin.Context, chats repository.ChatRepository, logger *zap.Logger, rawID string) (*models.Chat, bool) {
	chatID, ok := parseChatID(rawID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return nil, false
	}

	chat, err := chats.GetByID(c.Request.Context(), chatID)
	if err != nil {
		logger.Error("failed to get chat", zap.Int64("chat_id", chatID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get chat"})
		return nil, false
	}
	if chat == nil || (chat.UserID != middleware.GetUserID(c) && middleware.GetRole(c) != models.RoleAdmin) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return nil, false
	}
	return chat, true
}
