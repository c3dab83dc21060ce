package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/aipdfly/internal/billing"
	"github.com/lalith-99/aipdfly/internal/middleware"
	"go.uber.org/zap"
)

type BillingHandler struct {
	service *billing.Service
	logger  *zap.Logger
}

func NewBillingHandler(service *billing.Service, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{service: service, logger: logger}
}

// Checkout handles GET /v1/billing/checkout and returns where to redirect
// the browser.
func (h *BillingHandler) Checkout(c *gin.Context) {
	userID := middleware.GetUserID(c)

	url, err := h.service.Checkout(c.Request.Context(), userID, middleware.GetEmail(c))
	if err != nil {
		h.logger.Error("failed to start checkout", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start checkout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Status handles GET /v1/billing/status
func (h *BillingHandler) Status(c *gin.Context) {
	userID := middleware.GetUserID(c)

	st, err := h.service.Status(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load billing status", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load billing status"})
		return
	}
	c.JSON(http.StatusOK, st)
}
