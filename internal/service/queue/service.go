// Package queue advances queues and reads their momentary state.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/ranking"
	"github.com/jwalitptl/queue-api/internal/repository"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

// Publisher receives queue events after the transaction that caused them
// has committed. Implementations must not block.
type Publisher interface {
	Publish(event *model.QueueEvent)
}

type Config struct {
	Location              *time.Location
	DefaultServiceMinutes int
	SampleSize            int
	CacheTTL              time.Duration
	LeaseTTL              time.Duration
}

// Advancement is the result of one advancement attempt.
type Advancement struct {
	Key      ranking.PartitionKey
	Outcome  string
	Promoted *model.Appointment
}

type Service struct {
	tx           repository.TxManager
	appointments repository.AppointmentRepository
	services     repository.ServiceRepository
	slots        repository.SlotRepository
	publisher    Publisher
	metrics      *metrics.Metrics
	log          *logger.Logger
	cfg          Config

	// lookups caches services and slot start times; both are stable for the
	// lifetime of an appointment.
	lookups *cache.Cache
	// leases keeps concurrent advancement attempts in this process from
	// racing for the same partition lock.
	leases *cache.Cache
}

func NewService(
	tx repository.TxManager,
	appointments repository.AppointmentRepository,
	services repository.ServiceRepository,
	slots repository.SlotRepository,
	publisher Publisher,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultServiceMinutes <= 0 {
		cfg.DefaultServiceMinutes = ranking.DefaultServiceMinutes
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Second
	}
	return &Service{
		tx:           tx,
		appointments: appointments,
		services:     services,
		slots:        slots,
		publisher:    publisher,
		metrics:      m,
		log:          log,
		cfg:          cfg,
		lookups:      cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		leases:       cache.New(cfg.LeaseTTL, 2*cfg.LeaseTTL),
	}
}

// PartitionOf derives the partition of apt. slot is required when the
// appointment has one and the service is CENTRAL.
func (s *Service) PartitionOf(svc *model.Service, apt *model.Appointment, slot *model.Slot) (ranking.PartitionKey, error) {
	m := ranking.Member{
		ServiceID:  apt.ServiceID,
		ResourceID: apt.ResourceID,
		SlotID:     apt.SlotID,
		CreatedAt:  apt.CreatedAt,
	}
	if slot != nil {
		start := slot.StartTime
		m.SlotStart = &start
	}
	return ranking.NewPartitionKey(svc, m, s.cfg.Location)
}

// PartitionFor is PartitionOf for callers outside a transaction.
func (s *Service) PartitionFor(ctx context.Context, svc *model.Service, apt *model.Appointment) (ranking.PartitionKey, error) {
	var slot *model.Slot
	if apt.SlotID != nil && svc.QueueScope == model.QueueScopeCentral {
		var err error
		if slot, err = s.slot(ctx, *apt.SlotID); err != nil {
			return ranking.PartitionKey{}, err
		}
	}
	return s.PartitionOf(svc, apt, slot)
}

// AdvanceTx promotes the oldest confirmed appointment of key to serving when
// nobody in the partition is serving. It never waits for a lock held by
// another attempt; such attempts report AdvanceSkipped.
func (s *Service) AdvanceTx(ctx context.Context, tx repository.QueueTx, key ranking.PartitionKey) (*Advancement, error) {
	res := &Advancement{Key: key, Outcome: metrics.AdvanceSkipped}

	lease := key.String()
	if err := s.leases.Add(lease, struct{}{}, cache.DefaultExpiration); err != nil {
		return res, nil
	}
	defer s.leases.Delete(lease)

	locked, err := tx.TryLockPartition(ctx, key)
	if err != nil {
		return nil, err
	}
	if !locked {
		return res, nil
	}

	res.Outcome = metrics.AdvanceNoop
	serving, err := tx.HasServing(ctx, key)
	if err != nil {
		return nil, err
	}
	if serving {
		return res, nil
	}

	next, err := tx.NextConfirmed(ctx, key)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return res, nil
	}

	promoted, err := tx.UpdateAppointmentStatus(ctx, next.ID, model.AppointmentStatusServing, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to promote appointment %s: %w", next.ID, err)
	}
	res.Outcome = metrics.AdvancePromoted
	res.Promoted = promoted
	return res, nil
}

// AdvanceInTx runs AdvanceTx under a savepoint of the caller's transaction.
// Failures are logged and undone without affecting the caller.
func (s *Service) AdvanceInTx(ctx context.Context, tx repository.QueueTx, key ranking.PartitionKey) *Advancement {
	var res *Advancement
	err := tx.Savepoint(ctx, func() error {
		var err error
		res, err = s.AdvanceTx(ctx, tx, key)
		return err
	})
	if err != nil {
		s.metrics.Advancements.WithLabelValues(metrics.AdvanceFailed).Inc()
		s.log.Error(err, "queue advancement failed", "partition", key.String())
		return nil
	}
	s.metrics.Advancements.WithLabelValues(res.Outcome).Inc()
	return res
}

// Advance runs one advancement attempt in its own transaction and publishes
// the promotion, if any, after commit.
func (s *Service) Advance(ctx context.Context, svc *model.Service, key ranking.PartitionKey) (*Advancement, error) {
	var res *Advancement
	err := s.tx.WithTx(ctx, func(tx repository.QueueTx) error {
		var err error
		res, err = s.AdvanceTx(ctx, tx, key)
		return err
	})
	if err != nil {
		s.metrics.Advancements.WithLabelValues(metrics.AdvanceFailed).Inc()
		return nil, fmt.Errorf("failed to advance queue %s: %w", key, err)
	}
	s.metrics.Advancements.WithLabelValues(res.Outcome).Inc()
	s.PublishAdvancement(ctx, svc, res)
	return res, nil
}

// PublishAdvancement emits the event of a committed promotion. Nil and
// unpromoted results are ignored.
func (s *Service) PublishAdvancement(ctx context.Context, svc *model.Service, res *Advancement) {
	if res == nil || res.Promoted == nil {
		return
	}
	s.Publish(ctx, model.QueueEventAdvancement, svc, res.Promoted, res.Key)
}

// Publish snapshots key and hands the event to the publisher. It is called
// after commit and never fails the caller.
func (s *Service) Publish(ctx context.Context, eventType model.QueueEventType, svc *model.Service, apt *model.Appointment, key ranking.PartitionKey) {
	if s.publisher == nil {
		return
	}
	current, wait, err := s.Snapshot(ctx, svc, key, apt.ResourceID)
	if err != nil {
		s.log.Error(err, "failed to snapshot queue for event",
			"partition", key.String(), "appointment_id", apt.ID.String())
	}

	id := apt.ID
	status := apt.Status
	s.publisher.Publish(&model.QueueEvent{
		Type:               eventType,
		PartitionKey:       key.String(),
		CurrentServingRank: current,
		EstimatedWait:      wait,
		OrganizationID:     apt.OrganizationID,
		ServiceID:          apt.ServiceID,
		ResourceID:         apt.ResourceID,
		AppointmentID:      &id,
		Status:             &status,
	})
}

// Snapshot returns the current serving rank of key and the estimated wait
// of whoever joins the end of the queue now, ranked one past every active
// appointment.
func (s *Service) Snapshot(ctx context.Context, svc *model.Service, key ranking.PartitionKey, resourceID *uuid.UUID) (int, int, error) {
	entries, err := s.appointments.ListPartition(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	r := ranking.Rank(entries)
	current := r.CurrentServingRank()

	ahead := r.PeopleAhead(r.Len() + 1)
	samples, err := s.samples(ctx, svc, key, resourceID)
	if err != nil {
		return current, 0, err
	}
	return current, ranking.EstimateWait(svc, ahead, samples, s.cfg.DefaultServiceMinutes), nil
}

// Status reads the live position of apt. Appointments that left the active
// set report rank zero.
func (s *Service) Status(ctx context.Context, apt *model.Appointment) (*model.QueueStatus, error) {
	svc, err := s.service(ctx, apt.ServiceID)
	if err != nil {
		return nil, err
	}
	key, err := s.PartitionFor(ctx, svc, apt)
	if err != nil {
		return nil, err
	}
	entries, err := s.appointments.ListPartition(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	r := ranking.Rank(entries)

	status := &model.QueueStatus{
		AppointmentID:      apt.ID,
		Status:             apt.Status,
		CurrentServingRank: r.CurrentServingRank(),
	}
	rank, ok := r.RankOf(apt.ID)
	if !ok {
		return status, nil
	}
	status.Rank = rank
	if apt.Status.Waiting() {
		status.PeopleAhead = r.PeopleAhead(rank)
		samples, err := s.samples(ctx, svc, key, apt.ResourceID)
		if err != nil {
			return nil, err
		}
		status.EstimatedWaitMinutes = ranking.EstimateWait(svc, status.PeopleAhead, samples, s.cfg.DefaultServiceMinutes)
	}
	return status, nil
}

// RankMany annotates appointments with their live rank, ranking each
// partition once.
func (s *Service) RankMany(ctx context.Context, apts []*model.Appointment) ([]*model.AppointmentView, error) {
	rankings := make(map[string]*ranking.Ranking)
	views := make([]*model.AppointmentView, 0, len(apts))

	for _, apt := range apts {
		svc, err := s.service(ctx, apt.ServiceID)
		if err != nil {
			return nil, err
		}
		key, err := s.PartitionFor(ctx, svc, apt)
		if err != nil {
			return nil, err
		}
		r, ok := rankings[key.String()]
		if !ok {
			entries, err := s.appointments.ListPartition(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("failed to load queue: %w", err)
			}
			r = ranking.Rank(entries)
			rankings[key.String()] = r
		}
		rank, _ := r.RankOf(apt.ID)
		views = append(views, &model.AppointmentView{Appointment: apt, QueueNumber: rank})
	}
	return views, nil
}

// LookupService returns the service, served from cache when possible.
func (s *Service) LookupService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	return s.service(ctx, id)
}

func (s *Service) samples(ctx context.Context, svc *model.Service, key ranking.PartitionKey, resourceID *uuid.UUID) ([]ranking.Sample, error) {
	if svc.QueueType != model.QueueTypeDynamic {
		return nil, nil
	}
	samples, err := s.appointments.RecentCompleted(ctx, key.SampleKey(resourceID), s.cfg.SampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load service durations: %w", err)
	}
	return samples, nil
}

func (s *Service) service(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	cacheKey := "service:" + id.String()
	if cached, found := s.lookups.Get(cacheKey); found {
		return cached.(*model.Service), nil
	}
	svc, err := s.services.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	s.lookups.Set(cacheKey, svc, cache.DefaultExpiration)
	return svc, nil
}

func (s *Service) slot(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	cacheKey := "slot:" + id.String()
	if cached, found := s.lookups.Get(cacheKey); found {
		return cached.(*model.Slot), nil
	}
	slot, err := s.slots.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	s.lookups.Set(cacheKey, slot, cache.DefaultExpiration)
	return slot, nil
}
