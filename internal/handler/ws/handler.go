package ws

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/queue-api/internal/realtime"
	"github.com/jwalitptl/queue-api/pkg/logger"
)

// Handler upgrades observers to websocket connections on the realtime hub.
type Handler struct {
	hub      *realtime.Hub
	upgrader *websocket.Upgrader
	cfg      realtime.ClientConfig
	log      *logger.Logger
}

func NewHandler(hub *realtime.Hub, allowedOrigin string, cfg realtime.ClientConfig, log *logger.Logger) *Handler {
	return &Handler{
		hub:      hub,
		upgrader: realtime.NewUpgrader(allowedOrigin),
		cfg:      cfg,
		log:      log,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Serve)
}

func (h *Handler) Serve(c *gin.Context) {
	// The upgrader has already written an error response on failure.
	if err := realtime.Serve(h.hub, h.upgrader, h.cfg, h.log, c.Writer, c.Request); err != nil {
		h.log.Debug("websocket upgrade failed", "error", err.Error())
	}
}
