package appointment

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/queue-api/internal/middleware"
	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/service/appointment"
	"github.com/jwalitptl/queue-api/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts customer routes on r and organization admin routes
// on admin. Both groups must already authenticate.
func (h *Handler) RegisterRoutes(r, admin *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.Book)
		appointments.GET("", h.ListMine)
		appointments.GET("/:id", h.Get)
		appointments.GET("/:id/queue", h.QueueStatus)
		appointments.POST("/:id/cancel", h.Cancel)
	}

	adminAppointments := admin.Group("/appointments")
	{
		adminAppointments.GET("", h.ListOrganization)
		adminAppointments.PATCH("/:id/status", h.UpdateStatus)
	}
}

func (h *Handler) Book(c *gin.Context) {
	var req model.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	req.UserID = middleware.UserID(c)

	booking, err := h.service.Book(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, booking)
}

func (h *Handler) ListMine(c *gin.Context) {
	views, err := h.service.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), id, middleware.UserID(c), middleware.AdminOrganization(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) QueueStatus(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	status, err := h.service.QueueStatus(c.Request.Context(), id, middleware.UserID(c), middleware.AdminOrganization(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, status)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	apt, err := h.service.Cancel(c.Request.Context(), &model.CancelRequest{
		AppointmentID: id,
		UserID:        middleware.UserID(c),
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) ListOrganization(c *gin.Context) {
	var filter model.AppointmentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	orgID := middleware.AdminOrganization(c)
	views, err := h.service.ListForOrganization(c.Request.Context(), *orgID, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	req.AppointmentID = id
	req.OrganizationID = *middleware.AdminOrganization(c)

	apt, err := h.service.UpdateStatus(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}
