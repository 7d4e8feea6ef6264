package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/ranking"
	"github.com/jwalitptl/queue-api/internal/repository"
	"github.com/jwalitptl/queue-api/internal/service/queue"
	apperrors "github.com/jwalitptl/queue-api/pkg/errors"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

// Notifier dispatches booking notifications. Calls must return immediately;
// delivery happens in the background and its failures are not reported.
type Notifier interface {
	NotifyBooked(apt *model.Appointment)
	NotifyCancelled(apt *model.Appointment)
	NotifyStatusChanged(apt *model.Appointment, status model.AppointmentStatus)
}

type Config struct {
	AdvanceOnAdmission bool
	Location           *time.Location
	Now                func() time.Time
}

type Service struct {
	tx           repository.TxManager
	appointments repository.AppointmentRepository
	queue        *queue.Service
	notifier     Notifier
	metrics      *metrics.Metrics
	log          *logger.Logger
	cfg          Config
}

func NewService(
	tx repository.TxManager,
	appointments repository.AppointmentRepository,
	queueSvc *queue.Service,
	notifier Notifier,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		tx:           tx,
		appointments: appointments,
		queue:        queueSvc,
		notifier:     notifier,
		metrics:      m,
		log:          log,
		cfg:          cfg,
	}
}

// Book admits a new appointment and returns it with its rank. The whole
// admission is one transaction taking row locks in the order service,
// resource, slot.
func (s *Service) Book(ctx context.Context, req *model.BookRequest) (*model.Booking, error) {
	start := time.Now()
	defer func() { s.metrics.AdmissionLatency.Observe(time.Since(start).Seconds()) }()

	var (
		svc     *model.Service
		key     ranking.PartitionKey
		booking *model.Booking
	)
	err := s.tx.WithTx(ctx, func(tx repository.QueueTx) error {
		var err error
		svc, err = tx.LockService(ctx, req.OrganizationID, req.ServiceID)
		if err != nil {
			return notFound(err, "service", ErrServiceNotFound)
		}

		if svc.QueueScope == model.QueueScopePerResource && req.ResourceID == nil {
			return apperrors.InvalidTransition("a resource is required for this service", ErrResourceRequired)
		}
		var resource *model.Resource
		if req.ResourceID != nil {
			if resource, err = tx.LockResource(ctx, req.OrganizationID, *req.ResourceID); err != nil {
				return notFound(err, "resource", ErrResourceNotFound)
			}
		}

		var slot *model.Slot
		if req.SlotID != nil {
			if slot, err = tx.LockSlot(ctx, req.OrganizationID, *req.SlotID); err != nil {
				return notFound(err, "slot", ErrSlotNotFound)
			}
			if !slot.IsActive || (resource != nil && slot.ResourceID != resource.ID) {
				return apperrors.NotFound("slot", ErrSlotNotFound)
			}
			if svc.QueueType == model.QueueTypeStatic && slot.BookedCount >= admissionLimit(svc, resource, slot) {
				return capacityExceeded()
			}
		}

		apt := &model.Appointment{
			OrganizationID: req.OrganizationID,
			ServiceID:      svc.ID,
			ResourceID:     req.ResourceID,
			SlotID:         req.SlotID,
			UserID:         req.UserID,
			Status:         model.AppointmentStatusConfirmed,
			TokenNumber:    s.newToken(),
		}
		if apt.ResourceID == nil && slot != nil {
			resourceID := slot.ResourceID
			apt.ResourceID = &resourceID
		}
		if err := tx.InsertAppointment(ctx, apt); err != nil {
			return err
		}
		if slot != nil {
			if err := reserve(ctx, tx, slot); err != nil {
				return err
			}
		}

		if key, err = s.queue.PartitionOf(svc, apt, slot); err != nil {
			return err
		}
		entries, err := tx.ListPartition(ctx, key)
		if err != nil {
			return err
		}
		rank, ok := ranking.Rank(entries).RankOf(apt.ID)
		if !ok {
			return fmt.Errorf("appointment %s missing from queue %s", apt.ID, key)
		}
		booking = &model.Booking{Appointment: apt, QueueNumber: rank}
		return nil
	})
	if err != nil {
		s.recordAdmission(err)
		return nil, wrap(err, "failed to book appointment")
	}
	s.metrics.Admissions.WithLabelValues("admitted").Inc()

	s.queue.Publish(ctx, model.QueueEventBooking, svc, booking.Appointment, key)
	if s.cfg.AdvanceOnAdmission {
		res, err := s.queue.Advance(ctx, svc, key)
		if err != nil {
			s.log.Error(err, "advancement after admission failed", "appointment_id", booking.Appointment.ID.String())
		} else if res.Promoted != nil && res.Promoted.ID == booking.Appointment.ID {
			booking.Appointment = res.Promoted
		}
	}
	s.notifier.NotifyBooked(booking.Appointment)

	return booking, nil
}

// Cancel cancels an appointment on behalf of its owner and returns its slot
// unit.
func (s *Service) Cancel(ctx context.Context, req *model.CancelRequest) (*model.Appointment, error) {
	by := model.CancelledByUser
	ch, err := s.change(ctx, req.AppointmentID, model.AppointmentStatusCancelled, &by, func(apt *model.Appointment) error {
		if apt.UserID != req.UserID {
			return apperrors.Forbidden("appointment belongs to another user", ErrForbidden)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to cancel appointment")
	}
	s.metrics.Cancellations.WithLabelValues(by).Inc()

	s.queue.Publish(ctx, model.QueueEventCancellation, ch.svc, ch.apt, ch.key)
	s.advanceAfterCommit(ctx, ch)
	s.notifier.NotifyCancelled(ch.apt)
	return ch.apt, nil
}

// UpdateStatus applies an administrator's status change. Leaving the queue
// promotes the next confirmed appointment within the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, req *model.StatusChangeRequest) (*model.Appointment, error) {
	switch req.Status {
	case model.AppointmentStatusConfirmed, model.AppointmentStatusServing, model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled, model.AppointmentStatusNoShow:
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unsupported status %q", req.Status), nil)
	}

	var by *string
	if req.Status == model.AppointmentStatusCancelled {
		admin := model.CancelledByAdmin
		by = &admin
	}
	ch, err := s.change(ctx, req.AppointmentID, req.Status, by, func(apt *model.Appointment) error {
		if apt.OrganizationID != req.OrganizationID {
			return apperrors.Forbidden("appointment belongs to another organization", ErrForbidden)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to update appointment status")
	}
	s.metrics.StatusChanges.WithLabelValues(string(req.Status)).Inc()

	eventType := model.QueueEventStatusChange
	if req.Status == model.AppointmentStatusCancelled {
		eventType = model.QueueEventCancellation
		s.metrics.Cancellations.WithLabelValues(model.CancelledByAdmin).Inc()
	}
	s.queue.Publish(ctx, eventType, ch.svc, ch.apt, ch.key)
	s.advanceAfterCommit(ctx, ch)
	if req.Status == model.AppointmentStatusCancelled {
		s.notifier.NotifyCancelled(ch.apt)
	} else {
		s.notifier.NotifyStatusChanged(ch.apt, req.Status)
	}
	return ch.apt, nil
}

type change struct {
	svc *model.Service
	apt *model.Appointment
	key ranking.PartitionKey
	adv *queue.Advancement
}

// change moves an appointment to status inside one transaction. authorize
// runs against the unlocked row before any lock is taken.
func (s *Service) change(ctx context.Context, id uuid.UUID, to model.AppointmentStatus, cancelledBy *string, authorize func(*model.Appointment) error) (*change, error) {
	ch := &change{}
	err := s.tx.WithTx(ctx, func(tx repository.QueueTx) error {
		current, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return notFound(err, "appointment", ErrAppointmentNotFound)
		}
		if err := authorize(current); err != nil {
			return err
		}

		if ch.svc, err = tx.GetService(ctx, current.ServiceID); err != nil {
			return fmt.Errorf("failed to get service: %w", err)
		}
		var slot *model.Slot
		if current.SlotID != nil {
			if slot, err = tx.LockSlot(ctx, current.OrganizationID, *current.SlotID); err != nil {
				return fmt.Errorf("failed to lock slot: %w", err)
			}
		}
		apt, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return notFound(err, "appointment", ErrAppointmentNotFound)
		}
		if !queue.CanTransition(apt.Status, to) {
			return apperrors.InvalidTransition(
				fmt.Sprintf("cannot change appointment from %s to %s", apt.Status, to), ErrInvalidTransition)
		}

		if ch.key, err = s.queue.PartitionOf(ch.svc, apt, slot); err != nil {
			return err
		}
		if to == model.AppointmentStatusServing {
			if err := s.claimServing(ctx, tx, ch.key); err != nil {
				return err
			}
		}

		if ch.apt, err = tx.UpdateAppointmentStatus(ctx, id, to, cancelledBy); err != nil {
			return err
		}
		if to == model.AppointmentStatusCancelled && slot != nil {
			if err := release(ctx, tx, slot); err != nil {
				return err
			}
		}
		if queue.TriggersAdvance(to) {
			ch.adv = s.queue.AdvanceInTx(ctx, tx, ch.key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// advanceAfterCommit publishes the promotion made inside the change. When
// that attempt was skipped, a concurrent advancement may have judged the
// partition before this change committed, so it is tried once more.
func (s *Service) advanceAfterCommit(ctx context.Context, ch *change) {
	if ch.adv == nil || ch.adv.Outcome != metrics.AdvanceSkipped {
		s.queue.PublishAdvancement(ctx, ch.svc, ch.adv)
		return
	}
	if _, err := s.queue.Advance(ctx, ch.svc, ch.key); err != nil {
		s.log.Error(err, "advancement retry failed", "appointment_id", ch.apt.ID.String())
	}
}

// claimServing makes sure nobody else in the partition is serving. It does
// not wait for a concurrent advancement of the same partition.
func (s *Service) claimServing(ctx context.Context, tx repository.QueueTx, key ranking.PartitionKey) error {
	locked, err := tx.TryLockPartition(ctx, key)
	if err != nil {
		return err
	}
	if !locked {
		return apperrors.InvalidTransition("queue is being advanced, retry", ErrInvalidTransition)
	}
	serving, err := tx.HasServing(ctx, key)
	if err != nil {
		return err
	}
	if serving {
		return apperrors.InvalidTransition("another appointment is already being served", ErrInvalidTransition)
	}
	return nil
}

// Get returns an appointment with its live rank to its owner or to an
// administrator of its organization.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID, adminOrg *uuid.UUID) (*model.AppointmentView, error) {
	apt, err := s.authorized(ctx, id, userID, adminOrg)
	if err != nil {
		return nil, err
	}
	views, err := s.queue.RankMany(ctx, []*model.Appointment{apt})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return views[0], nil
}

// QueueStatus returns the live queue position of an appointment.
func (s *Service) QueueStatus(ctx context.Context, id, userID uuid.UUID, adminOrg *uuid.UUID) (*model.QueueStatus, error) {
	apt, err := s.authorized(ctx, id, userID, adminOrg)
	if err != nil {
		return nil, err
	}
	status, err := s.queue.Status(ctx, apt)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return status, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.AppointmentView, error) {
	apts, err := s.appointments.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	views, err := s.queue.RankMany(ctx, apts)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return views, nil
}

func (s *Service) ListForOrganization(ctx context.Context, orgID uuid.UUID, filter *model.AppointmentFilter) ([]*model.AppointmentView, error) {
	apts, err := s.appointments.ListByOrganization(ctx, orgID, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	views, err := s.queue.RankMany(ctx, apts)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return views, nil
}

func (s *Service) authorized(ctx context.Context, id, userID uuid.UUID, adminOrg *uuid.UUID) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, wrap(notFound(err, "appointment", ErrAppointmentNotFound), "failed to get appointment")
	}
	if apt.UserID == userID || (adminOrg != nil && *adminOrg == apt.OrganizationID) {
		return apt, nil
	}
	return nil, apperrors.Forbidden("appointment belongs to another user", ErrForbidden)
}

// newToken returns a ticket id of the form TKN-YYYYMMDD-XXXXXX.
func (s *Service) newToken() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("TKN-%s-%s", s.cfg.Now().In(s.cfg.Location).Format("20060102"), suffix)
}

func (s *Service) recordAdmission(err error) {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		s.metrics.Admissions.WithLabelValues("capacity_exceeded").Inc()
		s.metrics.CapacityRejections.Inc()
	case errors.Is(err, ErrServiceNotFound), errors.Is(err, ErrResourceNotFound), errors.Is(err, ErrSlotNotFound):
		s.metrics.Admissions.WithLabelValues("not_found").Inc()
	case errors.Is(err, ErrResourceRequired):
		s.metrics.Admissions.WithLabelValues("rejected").Inc()
	default:
		s.metrics.Admissions.WithLabelValues("error").Inc()
	}
}

// notFound turns repository.ErrNotFound into a NotFound AppError carrying
// sentinel and passes other errors through.
func notFound(err error, resource string, sentinel error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, sentinel)
	}
	return err
}

// wrap keeps AppErrors intact and reports anything else as internal.
func wrap(err error, msg string) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Internal(fmt.Errorf("%s: %w", msg, err))
}
