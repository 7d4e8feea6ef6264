package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type Handler struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewHandler(checks map[string]Check) *Handler {
	return &Handler{checks: checks, timeout: 2 * time.Second}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health/live", h.LivenessCheck)
	r.GET("/health/ready", h.ReadinessCheck)
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(gin.H, len(names))
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = "DOWN"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "UP"
	}

	overall := "UP"
	if status != http.StatusOK {
		overall = "DOWN"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
