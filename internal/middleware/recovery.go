package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/queue-api/pkg/errors"
	"github.com/jwalitptl/queue-api/pkg/httputil"
	"github.com/jwalitptl/queue-api/pkg/logger"
)

// Recovery turns a panic into a 500 response.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(fmt.Errorf("panic: %v", r), "Request panic recovered",
					"stack", string(debug.Stack()),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"request_id", c.GetString(ContextRequestID))

				httputil.RespondWithError(c, errors.Internal(fmt.Errorf("panic: %v", r)))
				c.Abort()
			}
		}()
		c.Next()
	}
}
