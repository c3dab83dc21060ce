package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/observ"
	"github.com/lalith-99/aipdfly/internal/repository"
	"github.com/lalith-99/aipdfly/internal/share"
	"go.uber.org/zap"
)

// ShareHandler covers both sides of a share: the owner managing the link and
// anonymous viewers opening it.
type ShareHandler struct {
	chats   repository.ChatRepository
	shares  repository.ShareRepository
	manager *share.Manager
	gate    *share.Gate
	objects ObjectStore
	metrics *observ.Metrics
	logger  *zap.Logger
}

func NewShareHandler(
	chats repository.ChatRepository,
	shares repository.ShareRepository,
	manager *share.Manager,
	gate *share.Gate,
	objects ObjectStore,
	metrics *observ.Metrics,
	logger *zap.Logger,
) *ShareHandler {
	return &ShareHandler{
		chats:   chats,
		shares:  shares,
		manager: manager,
		gate:    gate,
		objects: objects,
		metrics: metrics,
		logger:  logger,
	}
}

type shareChatRequest struct {
	ChatID int64 `json:"chatId" binding:"required,gt=0"`
}

// max counts runes; Manager.SetPassword enforces the 72-byte bcrypt limit.
type sharePasswordRequest struct {
	ChatID   int64   `json:"chatId" binding:"required,gt=0"`
	Password *string `json:"password" binding:"omitempty,max=72"`
}

type unlockRequest struct {
	Password string `json:"password"`
}

// Create handles POST /v1/shares
func (h *ShareHandler) Create(c *gin.Context) {
	var req shareChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, ok := ownedChat(c, h.chats, h.logger, strconv.FormatInt(req.ChatID, 10))
	if !ok {
		return
	}

	link, err := h.manager.Create(c.Request.Context(), chat.ID, chat.UserID)
	if err != nil {
		if errors.Is(err, share.ErrAlreadyShared) {
			c.JSON(http.StatusConflict, gin.H{"error": "chat is already shared"})
			return
		}
		h.logger.Error("failed to create share", zap.Int64("chat_id", chat.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create share"})
		return
	}
	c.JSON(http.StatusCreated, link)
}

// SetPassword handles PUT /v1/shares. A null or empty password makes the
// link public again.
func (h *ShareHandler) SetPassword(c *gin.Context) {
	var req sharePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, ok := ownedChat(c, h.chats, h.logger, strconv.FormatInt(req.ChatID, 10))
	if !ok {
		return
	}

	shares, err := h.manager.SetPassword(c.Request.Context(), chat.ID, req.Password)
	if err != nil {
		if errors.Is(err, share.ErrNotShared) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat is not shared"})
			return
		}
		if errors.Is(err, share.ErrPasswordTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at most 72 bytes"})
			return
		}
		h.logger.Error("failed to set share password", zap.Int64("chat_id", chat.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update share"})
		return
	}
	c.JSON(http.StatusOK, h.sharesView(shares))
}

// Delete handles DELETE /v1/shares
func (h *ShareHandler) Delete(c *gin.Context) {
	var req shareChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, ok := ownedChat(c, h.chats, h.logger, strconv.FormatInt(req.ChatID, 10))
	if !ok {
		return
	}

	if err := h.manager.Delete(c.Request.Context(), chat.ID); err != nil {
		h.logger.Error("failed to delete share", zap.Int64("chat_id", chat.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete share"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Current handles GET /v1/chats/:id/share
func (h *ShareHandler) Current(c *gin.Context) {
	chat, ok := ownedChat(c, h.chats, h.logger, c.Param("id"))
	if !ok {
		return
	}

	shares, err := h.manager.Current(c.Request.Context(), chat.ID)
	if err != nil {
		h.logger.Error("failed to fetch share", zap.Int64("chat_id", chat.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch share"})
		return
	}
	c.JSON(http.StatusOK, h.sharesView(shares))
}

type shareView struct {
	models.Share
	Link      string `json:"link"`
	Protected bool   `json:"protected"`
	State     string `json:"state"`
}

func (h *ShareHandler) sharesView(shares []models.Share) []shareView {
	state := share.StateOf(shares).String()
	out := make([]shareView, 0, len(shares))
	for _, sh := range shares {
		out = append(out, shareView{
			Share:     sh,
			Link:      h.manager.URL(sh.ShareKey),
			Protected: sh.Protected(),
			State:     state,
		})
	}
	return out
}

// View handles GET /v1/public/shares/:key
//
// A public share is returned with its content. A protected one only reveals
// that it exists and its name; the viewer must POST the password to unlock.
func (h *ShareHandler) View(c *gin.Context) {
	key := c.Param("key")
	sc, err := h.gate.Resolve(c.Request.Context(), key)
	if err != nil {
		h.gateError(c, key, err)
		return
	}

	if sc.Share.Protected() {
		c.JSON(http.StatusOK, gin.H{
			"protected": true,
			"chat":      gin.H{"id": sc.Chat.ID, "pdfName": sc.Chat.PDFName, "createdAt": sc.Chat.CreatedAt},
		})
		return
	}
	h.unlock(c, key, "")
}

// Unlock handles POST /v1/public/shares/:key/unlock
func (h *ShareHandler) Unlock(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.unlock(c, c.Param("key"), req.Password)
}

func (h *ShareHandler) unlock(c *gin.Context, key, password string) {
	content, err := h.gate.Unlock(c.Request.Context(), key, password)
	if err != nil {
		h.gateError(c, key, err)
		return
	}
	h.metrics.Unlock("ok")

	pdfURL := content.Chat.PDFURL
	if h.objects != nil && content.Chat.FileKey != "" {
		signed, err := h.objects.PDFURL(c.Request.Context(), content.Chat.FileKey)
		if err != nil {
			h.logger.Warn("failed to presign shared pdf", zap.Int64("chat_id", content.Chat.ID), zap.Error(err))
		} else {
			pdfURL = signed
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"protected": content.Share.Protected(),
		"chat":      content.Chat,
		"messages":  content.Messages,
		"pdfUrl":    pdfURL,
	})
}

func (h *ShareHandler) gateError(c *gin.Context, key string, err error) {
	switch {
	case errors.Is(err, share.ErrNotFound):
		h.metrics.Unlock("not_found")
		c.JSON(http.StatusNotFound, gin.H{"error": "share not found"})
	case errors.Is(err, share.ErrIncorrectPassword):
		h.metrics.Unlock("incorrect_password")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect password"})
	default:
		h.metrics.Unlock("error")
		h.logger.Error("failed to open share", zap.String("share_key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open share"})
	}
}

// AdminList handles GET /v1/admin/shares?userId=
func (h *ShareHandler) AdminList(c *gin.Context) {
	rows, err := h.shares.ListWithChats(c.Request.Context(), c.Query("userId"))
	if err != nil {
		h.logger.Error("failed to list shares", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list shares"})
		return
	}
	c.JSON(http.StatusOK, rows)
}
