package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/queue-api/pkg/logger"
)

// ErrorHandler logs errors handlers attached to the context. Responses are
// written by the handlers themselves.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, e := range c.Errors {
			fields := []interface{}{
				"request_id", c.GetString(ContextRequestID),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
			}
			if e.IsType(gin.ErrorTypeBind) {
				log.Debug("request rejected", append(fields, "error", e.Error())...)
				continue
			}
			log.Error(e.Err, "request error", fields...)
		}
	}
}
