package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/queue-api/pkg/logger"
)

// Logger logs one line per request, at a level chosen by the status code.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"request_id", c.GetString(ContextRequestID),
			"method", c.Request.Method,
			"path", path,
			"ip", c.ClientIP(),
			"status", status,
			"duration", time.Since(start).String(),
			"user_agent", c.Request.UserAgent(),
		}

		switch {
		case status >= 500:
			log.Warn("Server error", fields...)
		case status >= 400:
			log.Info("Client error", fields...)
		default:
			log.Debug("Request processed", fields...)
		}
	}
}
