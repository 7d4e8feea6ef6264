package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/queue-api/internal/handler/appointment"
	"github.com/jwalitptl/queue-api/internal/handler/health"
	"github.com/jwalitptl/queue-api/internal/handler/notification"
	"github.com/jwalitptl/queue-api/internal/handler/prometheus"
	"github.com/jwalitptl/queue-api/internal/handler/slot"
	"github.com/jwalitptl/queue-api/internal/handler/ws"
	"github.com/jwalitptl/queue-api/internal/middleware"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

type Handlers struct {
	Appointment  *appointment.Handler
	Slot         *slot.Handler
	Notification *notification.Handler
	Health       *health.Handler
	Metrics      *prometheus.Handler
	WS           *ws.Handler
}

type Config struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORS             middleware.CORSConfig
	MaxBodySize      int64
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	limiter  *middleware.RateLimiter
}

func NewRouter(auth *middleware.AuthMiddleware, handlers Handlers, m *metrics.Metrics, log *logger.Logger, config Config) *Router {
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.ErrorHandler(log),
		middleware.Metrics(m),
		middleware.CORS(config.CORS),
		middleware.SizeLimit(config.MaxBodySize),
	)

	r := &Router{engine: engine, auth: auth, handlers: handlers}
	if config.RateLimitEnabled {
		r.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
	}
	r.setup()
	return r
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setup() {
	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(r.engine)
	}
	if r.handlers.Metrics != nil {
		r.engine.GET("/metrics", r.handlers.Metrics.Handler())
	}
	if r.handlers.WS != nil {
		r.handlers.WS.RegisterRoutes(r.engine)
	}

	api := r.engine.Group("/api/v1")

	public := api.Group("")
	protected := api.Group("", r.auth.Authenticate())
	if r.limiter != nil {
		public.Use(r.limiter.RateLimit())
		protected.Use(r.limiter.RateLimit())
	}
	admin := protected.Group("/admin", r.auth.RequireAdmin())

	r.handlers.Appointment.RegisterRoutes(protected, admin)
	r.handlers.Slot.RegisterRoutes(public, admin)
	r.handlers.Notification.RegisterRoutes(protected)
}
