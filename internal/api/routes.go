package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/aipdfly/internal/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Chats    *ChatHandler
	Shares   *ShareHandler
	Webhooks *WebhookHandler
	Admin    *AdminHandler
	Billing  *BillingHandler
	Events   *EventsHandler
}

type RouteConfig struct {
	JWTSecret string
	// UnlockLimiter throttles password attempts on shares. Nil disables it.
	UnlockLimiter middleware.Limiter
	// Health reports whether dependencies are reachable.
	Health func(ctx context.Context) error
	// TrustedProxies may set X-Forwarded-For. Nil trusts no proxy, so the
	// unlock limiter keys on the TCP peer.
	TrustedProxies []string
}

// Register mounts every route under /v1. It fails only on a malformed
// trusted proxy entry.
func Register(r *gin.Engine, h Handlers, cfg RouteConfig, logger *zap.Logger) error {
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("set trusted proxies: %w", err)
	}

	v1 := r.Group("/v1")

	v1.GET("/health", func(c *gin.Context) {
		if cfg.Health != nil {
			if err := cfg.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider callbacks authenticate by signature, not bearer token.
	hooks := v1.Group("/webhooks")
	hooks.POST("/identity", h.Webhooks.Identity)
	hooks.POST("/payment", h.Webhooks.Payment)

	public := v1.Group("/public/shares")
	public.GET("/:key", h.Shares.View)
	public.POST("/:key/unlock",
		middleware.RateLimit(cfg.UnlockLimiter, middleware.ClientParamKey("key"), logger),
		h.Shares.Unlock,
	)

	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	authed.GET("/chats", h.Chats.List)
	authed.GET("/chats/:id/messages", h.Chats.Messages)
	authed.PATCH("/chats/:id", h.Chats.Rename)
	authed.DELETE("/chats/:id", h.Chats.Delete)
	authed.GET("/chats/:id/share", h.Shares.Current)

	authed.POST("/shares", h.Shares.Create)
	authed.PUT("/shares", h.Shares.SetPassword)
	authed.DELETE("/shares", h.Shares.Delete)

	authed.GET("/billing/checkout", h.Billing.Checkout)
	authed.GET("/billing/status", h.Billing.Status)

	authed.GET("/events", h.Events.Stream)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/users", h.Admin.ListUsers)
	admin.POST("/users", h.Admin.CreateUser)
	admin.PATCH("/users/:id", h.Admin.UpdateUser)
	admin.PUT("/users/:id/role", h.Admin.UpdateRole)
	admin.DELETE("/users/:id", h.Admin.DeleteUser)
	admin.GET("/subscriptions", h.Admin.ListSubscriptions)
	admin.GET("/shares", h.Shares.AdminList)
	return nil
}
