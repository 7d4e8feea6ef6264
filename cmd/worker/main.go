package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jmoiron/sqlx"
	"github.com/jwalitptl/queue-api/internal/config"
	"github.com/jwalitptl/queue-api/internal/email"
	"github.com/jwalitptl/queue-api/internal/repository/postgres"
	"github.com/jwalitptl/queue-api/internal/worker"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

func setupHealthCheck(port int, db *sqlx.DB, registry *prometheus.Registry, appLog *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	appLog := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.Format == "json",
	}).WithFields(map[string]interface{}{"component": "worker"})

	location, err := cfg.Queue.Location()
	if err != nil {
		appLog.Fatal(err, "Invalid queue timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLog.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("queue_worker", registry)

	reminders := worker.NewReminderWorker(
		postgres.NewAppointmentRepository(db),
		email.New(cfg.SMTP, appLog),
		m,
		appLog,
		worker.ReminderConfig{
			Interval:    cfg.Reminder.Interval,
			WindowStart: cfg.Reminder.WindowStart,
			WindowEnd:   cfg.Reminder.WindowEnd,
			Location:    location,
		},
	)

	srv := setupHealthCheck(cfg.Server.MetricsPort, db, registry, appLog)

	appLog.Info("Worker started", "interval", cfg.Reminder.Interval.String())
	reminders.Start(ctx)
	appLog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
