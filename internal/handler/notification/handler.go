package notification

import (
	stderrors "errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/queue-api/internal/middleware"
	"github.com/jwalitptl/queue-api/internal/repository"
	"github.com/jwalitptl/queue-api/internal/service/notification"
	"github.com/jwalitptl/queue-api/pkg/errors"
	"github.com/jwalitptl/queue-api/pkg/httputil"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Handler struct {
	service *notification.Service
}

func NewHandler(service *notification.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.PATCH("/:id/read", h.MarkRead)
	}
}

func (h *Handler) List(c *gin.Context) {
	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.RespondWithError(c, errors.BadRequest("invalid limit", err))
			return
		}
		limit = min(n, maxLimit)
	}
	list, err := h.service.List(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		httputil.RespondWithError(c, errors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), middleware.UserID(c), id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			httputil.RespondWithError(c, errors.NotFound("notification", err))
			return
		}
		httputil.RespondWithError(c, errors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"message": "notification marked as read"})
}
