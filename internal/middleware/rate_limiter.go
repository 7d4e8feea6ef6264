package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/queue-api/pkg/errors"
	"github.com/jwalitptl/queue-api/pkg/httputil"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
	// IdleTTL is how long a client's limiter is kept after its last request.
	IdleTTL time.Duration
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	config   RateLimiterConfig
	limiters *cache.Cache
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		config:   config,
		limiters: cache.New(config.IdleTTL, config.IdleTTL),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Get(key); ok {
		l := v.(*rate.Limiter)
		rl.limiters.Set(key, l, cache.DefaultExpiration)
		return l
	}
	l := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		// Another request created it first.
		if v, ok := rl.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// RateLimit limits authenticated callers by user and everyone else by IP.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if claims, ok := Claims(c); ok {
			key = "user:" + claims.UserID.String()
		}
		if !rl.limiter(key).Allow() {
			c.Header("Retry-After", "1")
			httputil.RespondWithError(c, errors.TooManyRequests())
			c.Abort()
			return
		}
		c.Next()
	}
}
