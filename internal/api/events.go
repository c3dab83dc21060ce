package api

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/aipdfly/internal/middleware"
	"github.com/lalith-99/aipdfly/internal/notify"
	"go.uber.org/zap"
)

type EventsHandler struct {
	hub      *notify.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewEventsHandler accepts upgrades from the listed origins, and from
// clients that send no Origin header.
func NewEventsHandler(hub *notify.Hub, origins []string, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, origin)
			},
		},
		logger: logger,
	}
}

// Stream handles GET /v1/events. It holds the connection open and relays
// the caller's sync notifications until either side closes.
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.Register(middleware.GetUserID(c))
	h.hub.Serve(conn, client)
}
