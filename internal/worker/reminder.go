package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/queue-api/internal/email"
	"github.com/jwalitptl/queue-api/internal/repository"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

// ReminderWorker emails customers whose slot starts soon. Each appointment
// gets at most one reminder.
type ReminderWorker struct {
	repo        repository.AppointmentRepository
	email       email.Service
	metrics     *metrics.Metrics
	log         *logger.Logger
	interval    time.Duration
	windowStart time.Duration
	windowEnd   time.Duration
	location    *time.Location
	now         func() time.Time
}

type ReminderConfig struct {
	Interval    time.Duration
	WindowStart time.Duration
	WindowEnd   time.Duration
	Location    *time.Location
	Now         func() time.Time
}

func NewReminderWorker(repo repository.AppointmentRepository, emailSvc email.Service, m *metrics.Metrics, log *logger.Logger, cfg ReminderConfig) *ReminderWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ReminderWorker{
		repo:        repo,
		email:       emailSvc,
		metrics:     m,
		log:         log,
		interval:    cfg.Interval,
		windowStart: cfg.WindowStart,
		windowEnd:   cfg.WindowEnd,
		location:    cfg.Location,
		now:         cfg.Now,
	}
}

func (w *ReminderWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Error(err, "reminder run finished with errors", "sent", sent)
				continue
			}
			if sent > 0 {
				w.log.Info("sent appointment reminders", "sent", sent)
			}
		}
	}
}

// RunOnce sends reminders for appointments starting inside the window and
// returns how many were sent.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	due, err := w.repo.ListDueReminders(ctx, now.Add(w.windowStart), now.Add(w.windowEnd))
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	var errs error
	sent := 0
	for _, r := range due {
		if r.UserEmail == "" {
			continue
		}
		body := fmt.Sprintf("Hello %s, your %s appointment (token %s) starts at %s.",
			r.UserName, r.ServiceName, r.TokenNumber, r.StartTime.In(w.location).Format("15:04 on Jan 2"))
		if err := w.email.SendCustom(ctx, r.UserEmail, "Appointment reminder", body); err != nil {
			errs = errors.Join(errs, fmt.Errorf("reminder for %s: %w", r.AppointmentID, err))
			continue
		}
		if err := w.repo.MarkReminderSent(ctx, r.AppointmentID); err != nil {
			errs = errors.Join(errs, fmt.Errorf("mark reminder %s: %w", r.AppointmentID, err))
			continue
		}
		sent++
		w.metrics.RemindersSent.Inc()
	}
	return sent, errs
}
