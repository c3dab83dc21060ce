package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/aipdfly/internal/identity"
	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/repository"
	"go.uber.org/zap"
)

// AdminHandler serves the admin dashboard. Routes are mounted behind
// middleware.RequireAdmin.
type AdminHandler struct {
	users     repository.UserRepository
	chats     repository.ChatRepository
	subs      repository.SubscriptionRepository
	directory identity.Directory
	objects   ObjectStore
	logger    *zap.Logger
}

// NewAdminHandler accepts a nil directory, in which case changes stay local.
func NewAdminHandler(
	users repository.UserRepository,
	chats repository.ChatRepository,
	subs repository.SubscriptionRepository,
	directory identity.Directory,
	objects ObjectStore,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		users:     users,
		chats:     chats,
		subs:      subs,
		directory: directory,
		objects:   objects,
		logger:    logger,
	}
}

type updateRoleRequest struct {
	Role models.Role `json:"role" binding:"required,oneof=admin customer"`
}

type createUserRequest struct {
	Username    string      `json:"username" binding:"required,max=64"`
	FirstName   string      `json:"firstName" binding:"max=100"`
	LastName    string      `json:"lastName" binding:"max=100"`
	Email       string      `json:"email" binding:"required,email"`
	Password    string      `json:"password" binding:"required,min=8,max=72"`
	PhoneNumber string      `json:"phoneNumber" binding:"omitempty,e164"`
	Role        models.Role `json:"role" binding:"omitempty,oneof=admin customer"`
}

type updateUserRequest struct {
	Username    string `json:"username" binding:"max=64"`
	FirstName   string `json:"firstName" binding:"max=100"`
	LastName    string `json:"lastName" binding:"max=100"`
	Email       string `json:"email" binding:"omitempty,email"`
	Password    string `json:"password" binding:"omitempty,min=8,max=72"`
	PhoneNumber string `json:"phoneNumber" binding:"omitempty,e164"`
}

// ListUsers handles GET /v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser handles POST /v1/admin/users
//
// The provider account is created first. The local row is written straight
// after so the dashboard lists it; the user.created webhook upserts the
// same profile.
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.directory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider not configured"})
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleCustomer
	}
	ctx := c.Request.Context()

	profile, err := h.directory.CreateUser(ctx, identity.NewUser{
		Username:    req.Username,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		Role:        role,
	})
	if err != nil {
		h.directoryError(c, err, "", "failed to create user")
		return
	}

	user, err := h.users.Upsert(ctx, *profile)
	if err == nil && user.Role != role {
		user, err = h.users.UpdateRole(ctx, profile.ID, role)
	}
	if err != nil {
		h.logger.Error("failed to store created user", zap.String("user_id", profile.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, user)
}

// UpdateUser handles PATCH /v1/admin/users/:id
//
// Only fields that differ from the provider account are sent. The local row
// takes the provider's view of the profile and keeps its role.
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	userID := c.Param("id")

	existing, err := h.users.GetByID(ctx, userID)
	if err != nil {
		h.logger.Error("failed to get user", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if h.directory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider not configured"})
		return
	}

	profile, err := h.directory.UpdateUser(ctx, userID, identity.UserChanges{
		Username:    req.Username,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.directoryError(c, err, userID, "failed to update user")
		return
	}
	if profile == nil {
		c.JSON(http.StatusOK, gin.H{"message": "no changes detected"})
		return
	}

	ok, err := h.users.Update(ctx, *profile, existing.Role)
	if err != nil {
		h.logger.Error("failed to store user update", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	user, err := h.users.GetByID(ctx, userID)
	if err != nil || user == nil {
		h.logger.Error("failed to reload user", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// directoryError answers a provider failure. Taken identifiers come back as
// a field map.
func (h *AdminHandler) directoryError(c *gin.Context, err error, userID, msg string) {
	var taken *identity.TakenError
	switch {
	case errors.As(err, &taken):
		c.JSON(http.StatusBadRequest, gin.H{"error": taken.Fields})
	case errors.Is(err, identity.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		h.logger.Error(msg, zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider rejected the change"})
	}
}

// UpdateRole handles PUT /v1/admin/users/:id/role
//
// The provider's public metadata is written first. Its user.updated webhook
// would set the same role, so the local write only closes the gap until it
// arrives.
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := c.Param("id")

	existing, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get user", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update role"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	if h.directory != nil {
		if err := h.directory.SetRole(c.Request.Context(), userID, req.Role); err != nil {
			h.logger.Error("failed to push role to identity provider", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider rejected the change"})
			return
		}
	}

	user, err := h.users.UpdateRole(c.Request.Context(), userID, req.Role)
	if err != nil {
		h.logger.Error("failed to update role", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update role"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser handles DELETE /v1/admin/users/:id
//
// The provider account goes first, as in UpdateRole, so a provider failure
// leaves both sides intact. Local rows follow, then the user's PDFs. The
// user.deleted webhook that arrives later deletes nothing new.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("id")

	chats, err := h.chats.ListByUser(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list user chats", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}

	if h.directory != nil {
		if err := h.directory.DeleteUser(ctx, userID); err != nil {
			h.logger.Error("failed to delete identity provider user", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider rejected the deletion"})
			return
		}
	}

	// If this fails the webhook retries the same cascade.
	if err := h.users.Delete(ctx, userID); err != nil {
		h.logger.Error("failed to delete user", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}

	removeObjects(ctx, h.objects, h.logger, chats...)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListSubscriptions handles GET /v1/admin/subscriptions
func (h *AdminHandler) ListSubscriptions(c *gin.Context) {
	rows, err := h.subs.ListWithUsers(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list subscriptions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no subscriptions found"})
		return
	}
	c.JSON(http.StatusOK, rows)
}
