package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/queue-api/internal/config"
	"github.com/jwalitptl/queue-api/internal/email"
	appointmentHandler "github.com/jwalitptl/queue-api/internal/handler/appointment"
	"github.com/jwalitptl/queue-api/internal/handler/health"
	notificationHandler "github.com/jwalitptl/queue-api/internal/handler/notification"
	prometheusHandler "github.com/jwalitptl/queue-api/internal/handler/prometheus"
	slotHandler "github.com/jwalitptl/queue-api/internal/handler/slot"
	"github.com/jwalitptl/queue-api/internal/handler/ws"
	"github.com/jwalitptl/queue-api/internal/middleware"
	"github.com/jwalitptl/queue-api/internal/realtime"
	"github.com/jwalitptl/queue-api/internal/repository/postgres"
	"github.com/jwalitptl/queue-api/internal/router"
	appointmentService "github.com/jwalitptl/queue-api/internal/service/appointment"
	notificationService "github.com/jwalitptl/queue-api/internal/service/notification"
	queueService "github.com/jwalitptl/queue-api/internal/service/queue"
	slotService "github.com/jwalitptl/queue-api/internal/service/slot"
	"github.com/jwalitptl/queue-api/pkg/auth"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/messaging"
	"github.com/jwalitptl/queue-api/pkg/messaging/redis"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	appLog := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.Format == "json",
	})
	location, err := cfg.Queue.Location()
	if err != nil {
		appLog.Fatal(err, "invalid queue timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLog.Fatal(err, "failed to connect to database")
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			appLog.Fatal(err, "failed to apply schema")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("queue", registry)

	broker, brokerCheck, err := newBroker(ctx, cfg, appLog, m)
	if err != nil {
		appLog.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	txManager := postgres.NewTxManager(baseRepo)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	serviceRepo := postgres.NewServiceRepository(db)
	resourceRepo := postgres.NewResourceRepository(db)
	slotRepo := postgres.NewSlotRepository(baseRepo)
	identityRepo := postgres.NewIdentityRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Realtime fan-out
	hub := realtime.NewHub(m, appLog)
	notifier := realtime.NewNotifier(broker, cfg.Realtime.Channel, cfg.Realtime.EventBuffer, m, appLog)
	go notifier.Run(ctx)
	go func() {
		if err := realtime.Relay(ctx, broker, cfg.Realtime.Channel, hub, appLog); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error(err, "realtime relay stopped")
		}
	}()

	// Initialize services
	notificationSvc := notificationService.NewService(
		identityRepo, serviceRepo, notificationRepo,
		email.New(cfg.SMTP, appLog), broker, m, appLog, cfg.Queue.NotificationTimeout,
	)
	queueSvc := queueService.NewService(txManager, appointmentRepo, serviceRepo, slotRepo, notifier, m, appLog, queueService.Config{
		Location:              location,
		DefaultServiceMinutes: cfg.Queue.DefaultServiceMinutes,
		SampleSize:            cfg.Queue.DynamicSampleSize,
		CacheTTL:              cfg.Queue.ServiceCacheTTL,
		LeaseTTL:              cfg.Queue.LeaseTTL,
	})
	appointmentSvc := appointmentService.NewService(txManager, appointmentRepo, queueSvc, notificationSvc, m, appLog, appointmentService.Config{
		AdvanceOnAdmission: cfg.Queue.AdvanceOnAdmission,
		Location:           location,
	})
	slotSvc := slotService.NewService(slotRepo, resourceRepo)

	jwtSvc, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		appLog.Fatal(err, "invalid JWT configuration")
	}
	if err := middleware.RegisterValidators(); err != nil {
		appLog.Fatal(err, "failed to register validators")
	}

	checks := map[string]health.Check{"database": db.PingContext}
	if brokerCheck != nil {
		checks["redis"] = brokerCheck
	}

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(middleware.NewAuthMiddleware(jwtSvc), router.Handlers{
		Appointment:  appointmentHandler.NewHandler(appointmentSvc),
		Slot:         slotHandler.NewHandler(slotSvc),
		Notification: notificationHandler.NewHandler(notificationSvc),
		Health:       health.NewHandler(checks),
		Metrics:      prometheusHandler.New(registry),
		WS: ws.NewHandler(hub, cfg.Realtime.AllowedOrigin, realtime.ClientConfig{
			Buffer:       cfg.Realtime.ClientBuffer,
			WriteTimeout: cfg.Realtime.WriteTimeout,
			PingInterval: cfg.Realtime.PingInterval,
		}, appLog),
	}, m, appLog, router.Config{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RPS),
		RateBurst:        cfg.RateLimit.Burst,
		CORS:             middleware.CORSConfig{AllowOrigins: []string{cfg.Realtime.AllowedOrigin}, MaxAge: 86400},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "server forced to shutdown")
	}
	notificationSvc.Wait()

	appLog.Info("server exited properly")
}

// newBroker connects to Redis when configured so that every API instance
// sees every queue update. Without Redis the updates stay in this process.
func newBroker(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (messaging.Broker, health.Check, error) {
	if cfg.Redis.URL == "" {
		log.Warn("redis not configured, realtime updates stay in process")
		return messaging.NewLocalBroker(cfg.Realtime.EventBuffer), nil, nil
	}
	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:             cfg.Redis.URL,
		MaxRetries:      cfg.Redis.MaxRetries,
		RetryBackoff:    cfg.Redis.RetryBackoff,
		PoolSize:        cfg.Redis.PoolSize,
		MinIdleConns:    cfg.Redis.MinIdleConns,
		SubscribeBuffer: cfg.Realtime.EventBuffer,
	}, log, m)
	if err != nil {
		return nil, nil, err
	}
	return broker, broker.Ping, nil
}
