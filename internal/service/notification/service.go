// Package notification tells customers and organization staff about booking
// changes by email and in-app notification. Every dispatch is a single
// background attempt; failures are logged and counted, never retried.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/email"
	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/repository"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/messaging"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

const (
	// Channel is the broker channel in-app notifications are published on.
	Channel = "notifications"

	channelEmail = "email"
	channelInApp = "in_app"

	defaultTimeout = 30 * time.Second
)

// InAppEvent is published on Channel after an in-app notification is stored.
type InAppEvent struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserID         uuid.UUID              `json:"user_id"`
	Type           model.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	CreatedAt      time.Time              `json:"created_at"`
}

type Service struct {
	identity repository.IdentityRepository
	services repository.ServiceRepository
	repo     repository.NotificationRepository
	emailSvc email.Service
	broker   messaging.Broker
	metrics  *metrics.Metrics
	log      *logger.Logger
	timeout  time.Duration

	wg sync.WaitGroup
}

func NewService(
	identity repository.IdentityRepository,
	services repository.ServiceRepository,
	repo repository.NotificationRepository,
	emailSvc email.Service,
	broker messaging.Broker,
	m *metrics.Metrics,
	log *logger.Logger,
	timeout time.Duration,
) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		identity: identity,
		services: services,
		repo:     repo,
		emailSvc: emailSvc,
		broker:   broker,
		metrics:  m,
		log:      log,
		timeout:  timeout,
	}
}

func (s *Service) NotifyBooked(apt *model.Appointment) {
	s.dispatch("booked", apt, func(ctx context.Context, r *recipients) error {
		subject := "Appointment confirmed"
		body := fmt.Sprintf("Your appointment for %s is confirmed. Your token is %s.", r.service.Name, apt.TokenNumber)
		err := s.toCustomer(ctx, r, model.NotificationTypeBooking, subject, body, apt)
		msg := fmt.Sprintf("%s booked %s (token %s).", r.user.Name, r.service.Name, apt.TokenNumber)
		return errors.Join(err, s.toStaff(ctx, r, model.NotificationTypeBooking, "New booking", msg, apt, false))
	})
}

// NotifyCancelled covers cancellations by the customer and by staff.
func (s *Service) NotifyCancelled(apt *model.Appointment) {
	s.dispatch("cancelled", apt, func(ctx context.Context, r *recipients) error {
		subject := "Appointment cancelled"
		body := fmt.Sprintf("Your appointment %s for %s has been cancelled.", apt.TokenNumber, r.service.Name)
		err := s.toCustomer(ctx, r, model.NotificationTypeCancellation, subject, body, apt)
		msg := fmt.Sprintf("%s's appointment for %s (token %s) has been cancelled.", r.user.Name, r.service.Name, apt.TokenNumber)
		if apt.CancelledBy != nil && *apt.CancelledBy == model.CancelledByUser {
			msg = fmt.Sprintf("%s cancelled %s (token %s).", r.user.Name, r.service.Name, apt.TokenNumber)
		}
		return errors.Join(err, s.toStaff(ctx, r, model.NotificationTypeCancellation, "Booking cancelled", msg, apt, true))
	})
}

func (s *Service) NotifyStatusChanged(apt *model.Appointment, status model.AppointmentStatus) {
	s.dispatch("status_changed", apt, func(ctx context.Context, r *recipients) error {
		subject := "Appointment update"
		body := fmt.Sprintf("Your appointment %s for %s is now %s.", apt.TokenNumber, r.service.Name, statusLabel(status))
		err := s.toCustomer(ctx, r, model.NotificationTypeStatus, subject, body, apt)
		msg := fmt.Sprintf("%s's appointment for %s (token %s) is now %s.", r.user.Name, r.service.Name, apt.TokenNumber, statusLabel(status))
		return errors.Join(err, s.toStaff(ctx, r, model.NotificationTypeStatus, "Appointment status updated", msg, apt, true))
	})
}

// Wait blocks until every dispatched notification has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

type recipients struct {
	user    *model.User
	org     *model.Organization
	service *model.Service
}

func (s *Service) dispatch(kind string, apt *model.Appointment, send func(context.Context, *recipients) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		r, err := s.resolve(ctx, apt)
		if err == nil {
			err = send(ctx, r)
		}
		if err != nil {
			s.metrics.NotificationsFailed.WithLabelValues(kind).Inc()
			s.log.Error(err, "failed to send notification",
				"kind", kind, "appointment_id", apt.ID.String())
		}
	}()
}

func (s *Service) resolve(ctx context.Context, apt *model.Appointment) (*recipients, error) {
	user, err := s.identity.GetUser(ctx, apt.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	org, err := s.identity.GetOrganization(ctx, apt.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	svc, err := s.services.Get(ctx, apt.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &recipients{user: user, org: org, service: svc}, nil
}

// toCustomer emails the customer when both the organization and the user
// allow it, and stores an in-app notification when the user allows it.
func (s *Service) toCustomer(ctx context.Context, r *recipients, typ model.NotificationType, subject, body string, apt *model.Appointment) error {
	var err error
	if r.org.EmailNotification && r.user.EmailNotificationEnabled && r.user.Email != "" {
		err = s.mail(ctx, r.user.Email, subject, body)
	}
	if r.user.NotificationEnabled {
		err = errors.Join(err, s.inApp(ctx, r.user.ID, apt, typ, subject, body))
	}
	return err
}

// toStaff reaches the organization when it asked for booking notifications:
// every admin in-app, the contact address by email and, with emailAdmins,
// every admin address that is not the contact address.
func (s *Service) toStaff(ctx context.Context, r *recipients, typ model.NotificationType, title, msg string, apt *model.Appointment, emailAdmins bool) error {
	if !r.org.NewBookingNotification {
		return nil
	}
	admins, err := s.identity.ListOrganizationAdmins(ctx, r.org.ID)
	if err != nil {
		return fmt.Errorf("failed to list organization admins: %w", err)
	}
	for _, admin := range admins {
		if admin.NotificationEnabled {
			err = errors.Join(err, s.inApp(ctx, admin.ID, apt, typ, title, msg))
		}
	}
	if !r.org.EmailNotification {
		return err
	}
	if r.org.ContactEmail != "" {
		err = errors.Join(err, s.mail(ctx, r.org.ContactEmail, title, msg))
	}
	if emailAdmins {
		for _, admin := range admins {
			if admin.Email == "" || admin.Email == r.org.ContactEmail {
				continue
			}
			err = errors.Join(err, s.mail(ctx, admin.Email, title, msg))
		}
	}
	return err
}

func (s *Service) mail(ctx context.Context, to, subject, body string) error {
	if err := s.emailSvc.SendCustom(ctx, to, subject, body); err != nil {
		return fmt.Errorf("failed to email %s: %w", to, err)
	}
	s.metrics.NotificationsSent.WithLabelValues(channelEmail).Inc()
	return nil
}

func (s *Service) inApp(ctx context.Context, userID uuid.UUID, apt *model.Appointment, typ model.NotificationType, title, msg string) error {
	orgID := apt.OrganizationID
	n := &model.Notification{
		UserID:         userID,
		OrganizationID: &orgID,
		Type:           typ,
		Title:          title,
		Message:        msg,
		Link:           "/appointments/" + apt.ID.String(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	s.metrics.NotificationsSent.WithLabelValues(channelInApp).Inc()

	event := &InAppEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	}
	if err := s.broker.Publish(ctx, Channel, event); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// List returns the newest notifications of a user.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]*model.Notification, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func statusLabel(status model.AppointmentStatus) string {
	switch status {
	case model.AppointmentStatusServing:
		return "being served"
	case model.AppointmentStatusNoShow:
		return "marked as no-show"
	}
	return string(status)
}
