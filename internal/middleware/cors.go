package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	AllowOrigins []string
	MaxAge       int
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = "Origin, Content-Type, Accept, Authorization, X-Request-ID"
)

// CORS lets booking front ends on other origins call the API. An empty
// AllowOrigins list or "*" allows every origin.
func CORS(config CORSConfig) gin.HandlerFunc {
	anyOrigin := len(config.AllowOrigins) == 0
	allowed := make(map[string]struct{}, len(config.AllowOrigins))
	for _, o := range config.AllowOrigins {
		if o == "*" {
			anyOrigin = true
		}
		allowed[o] = struct{}{}
	}
	maxAge := strconv.Itoa(config.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; ok || anyOrigin {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", corsMethods)
				c.Header("Access-Control-Allow-Headers", corsHeaders)
				c.Header("Access-Control-Expose-Headers", HeaderXRequestID)
				c.Header("Access-Control-Max-Age", maxAge)
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
