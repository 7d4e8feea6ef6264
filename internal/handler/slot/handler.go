package slot

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/queue-api/internal/middleware"
	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/service/slot"
	"github.com/jwalitptl/queue-api/pkg/httputil"
)

type Handler struct {
	service *slot.Service
}

func NewHandler(service *slot.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r, admin *gin.RouterGroup) {
	r.GET("/organizations/:orgId/slots", h.ListAvailable)

	slots := admin.Group("/slots")
	{
		slots.POST("", h.Create)
		slots.PUT("/:id", h.Update)
		slots.DELETE("/:id", h.Delete)
	}
}

// ListAvailable lists bookable slots of an organization.
func (h *Handler) ListAvailable(c *gin.Context) {
	orgID, ok := httputil.ParamUUID(c, "orgId")
	if !ok {
		return
	}
	var filter model.SlotFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	slots, err := h.service.ListAvailable(c.Request.Context(), orgID, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	created, err := h.service.Create(c.Request.Context(), *middleware.AdminOrganization(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, created)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	updated, err := h.service.Update(c.Request.Context(), *middleware.AdminOrganization(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, updated)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), *middleware.AdminOrganization(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"message": "slot deleted"})
}
