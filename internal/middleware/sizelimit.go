package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/queue-api/pkg/errors"
	"github.com/jwalitptl/queue-api/pkg/httputil"
)

// DefaultMaxBodySize bounds JSON request bodies.
const DefaultMaxBodySize int64 = 1 << 20

// SizeLimit rejects requests whose declared body is larger than maxBytes
// and caps reading for the rest.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			httputil.RespondWithError(c, errors.BadRequest("request body too large", nil))
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
