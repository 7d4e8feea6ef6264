package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/ranking"
	"github.com/jwalitptl/queue-api/internal/repository"
)

type appointmentRepository struct{ s *Store }

type serviceRepository struct{ s *Store }

type resourceRepository struct{ s *Store }

type slotRepository struct{ s *Store }

type identityRepository struct{ s *Store }

type notificationRepository struct{ s *Store }

func NewAppointmentRepository(s *Store) repository.AppointmentRepository {
	return &appointmentRepository{s: s}
}

func NewServiceRepository(s *Store) repository.ServiceRepository {
	return &serviceRepository{s: s}
}

func NewResourceRepository(s *Store) repository.ResourceRepository {
	return &resourceRepository{s: s}
}

func NewSlotRepository(s *Store) repository.SlotRepository {
	return &slotRepository{s: s}
}

func NewIdentityRepository(s *Store) repository.IdentityRepository {
	return &identityRepository{s: s}
}

func NewNotificationRepository(s *Store) repository.NotificationRepository {
	return &notificationRepository{s: s}
}

// write runs fn as a single-statement transaction.
func (s *Store) write(fn func(st *state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

func (r *appointmentRepository) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	apt, ok := r.s.data.appointments[id]
	if !ok || apt.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &apt, nil
}

func (r *appointmentRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.Appointment, error) {
	return r.list(func(apt *model.Appointment) bool { return apt.UserID == userID }), nil
}

func (r *appointmentRepository) ListByOrganization(_ context.Context, orgID uuid.UUID, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	if filter == nil {
		filter = &model.AppointmentFilter{}
	}
	return r.list(func(apt *model.Appointment) bool {
		if apt.OrganizationID != orgID {
			return false
		}
		if filter.Status != "" && apt.Status != filter.Status {
			return false
		}
		if filter.ServiceID != nil && apt.ServiceID != *filter.ServiceID {
			return false
		}
		if !filter.From.IsZero() && apt.CreatedAt.Before(filter.From) {
			return false
		}
		if !filter.To.IsZero() && !apt.CreatedAt.Before(filter.To) {
			return false
		}
		return true
	}), nil
}

// list returns matching appointments, newest first.
func (r *appointmentRepository) list(match func(*model.Appointment) bool) []*model.Appointment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.Appointment
	for _, apt := range r.s.data.appointments {
		apt := apt
		if apt.DeletedAt == nil && match(&apt) {
			out = append(out, &apt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

func (r *appointmentRepository) ListPartition(_ context.Context, key ranking.PartitionKey) ([]ranking.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.partition(key), nil
}

func (r *appointmentRepository) RecentCompleted(_ context.Context, key ranking.PartitionKey, limit int) ([]ranking.Sample, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var samples []ranking.Sample
	for _, apt := range r.s.data.appointments {
		apt := apt
		if apt.Status != model.AppointmentStatusCompleted || apt.DeletedAt != nil {
			continue
		}
		if !key.Contains(r.s.member(&apt)) {
			continue
		}
		samples = append(samples, ranking.Sample{CreatedAt: apt.CreatedAt, UpdatedAt: apt.UpdatedAt})
	}
	return ranking.MostRecent(samples, limit), nil
}

func (r *appointmentRepository) ListDueReminders(_ context.Context, from, to time.Time) ([]*model.Reminder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.Reminder
	for _, apt := range r.s.data.appointments {
		if apt.Status != model.AppointmentStatusConfirmed || apt.ReminderSent || apt.SlotID == nil || apt.DeletedAt != nil {
			continue
		}
		slot, ok := r.s.data.slots[*apt.SlotID]
		if !ok || !slot.StartTime.After(from) || slot.StartTime.After(to) {
			continue
		}
		user := r.s.data.users[apt.UserID]
		svc := r.s.data.services[apt.ServiceID]
		out = append(out, &model.Reminder{
			AppointmentID: apt.ID,
			TokenNumber:   apt.TokenNumber,
			UserName:      user.Name,
			UserEmail:     user.Email,
			ServiceName:   svc.Name,
			StartTime:     slot.StartTime,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *appointmentRepository) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	return r.s.write(func(st *state) error {
		apt, ok := st.appointments[id]
		if !ok {
			return repository.ErrNotFound
		}
		apt.ReminderSent = true
		st.appointments[id] = apt
		return nil
	})
}

func (r *serviceRepository) Get(_ context.Context, id uuid.UUID) (*model.Service, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	svc, ok := r.s.data.services[id]
	if !ok || svc.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &svc, nil
}

func (r *resourceRepository) Get(_ context.Context, orgID, id uuid.UUID) (*model.Resource, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.data.resources[id]
	if !ok || res.OrganizationID != orgID || res.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &res, nil
}

func (r *slotRepository) Create(_ context.Context, slot *model.Slot) error {
	return r.s.write(func(st *state) error {
		if overlaps(st, slot) {
			return repository.ErrSlotOverlap
		}
		if slot.ID == uuid.Nil {
			slot.ID = uuid.New()
		}
		slot.CreatedAt = r.s.now()
		slot.UpdatedAt = slot.CreatedAt
		st.slots[slot.ID] = *slot
		return nil
	})
}

func (r *slotRepository) Get(_ context.Context, id uuid.UUID) (*model.Slot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	slot, ok := r.s.data.slots[id]
	if !ok || slot.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &slot, nil
}

func (r *slotRepository) Update(_ context.Context, slot *model.Slot) error {
	return r.s.write(func(st *state) error {
		current, ok := st.slots[slot.ID]
		if !ok || current.OrganizationID != slot.OrganizationID || current.DeletedAt != nil {
			return repository.ErrNotFound
		}
		if inUse(st, slot.ID) {
			return repository.ErrSlotInUse
		}
		if overlaps(st, slot) {
			return repository.ErrSlotOverlap
		}
		slot.UpdatedAt = r.s.now()
		st.slots[slot.ID] = *slot
		return nil
	})
}

func (r *slotRepository) Delete(_ context.Context, orgID, id uuid.UUID) error {
	return r.s.write(func(st *state) error {
		current, ok := st.slots[id]
		if !ok || current.OrganizationID != orgID || current.DeletedAt != nil {
			return repository.ErrNotFound
		}
		if inUse(st, id) {
			return repository.ErrSlotInUse
		}
		delete(st.slots, id)
		return nil
	})
}

func (r *slotRepository) ListAvailable(_ context.Context, orgID uuid.UUID, filter *model.SlotFilter) ([]*model.Slot, error) {
	if filter == nil {
		filter = &model.SlotFilter{}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.Slot
	for _, slot := range r.s.data.slots {
		slot := slot
		if slot.OrganizationID != orgID || !slot.IsActive || slot.DeletedAt != nil || slot.BookedCount >= slot.MaxCapacity {
			continue
		}
		if filter.ResourceID != nil && slot.ResourceID != *filter.ResourceID {
			continue
		}
		if !filter.From.IsZero() && slot.StartTime.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !slot.StartTime.Before(filter.To) {
			continue
		}
		out = append(out, &slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func overlaps(st *state, slot *model.Slot) bool {
	for id, other := range st.slots {
		if id == slot.ID || other.ResourceID != slot.ResourceID || other.DeletedAt != nil {
			continue
		}
		if other.StartTime.Before(slot.EndTime) && other.EndTime.After(slot.StartTime) {
			return true
		}
	}
	return false
}

func inUse(st *state, slotID uuid.UUID) bool {
	for _, apt := range st.appointments {
		if apt.SlotID != nil && *apt.SlotID == slotID {
			return true
		}
	}
	return false
}

func (r *identityRepository) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.data.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *identityRepository) GetOrganization(_ context.Context, id uuid.UUID) (*model.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	org, ok := r.s.data.organizations[id]
	if !ok || org.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &org, nil
}

func (r *identityRepository) ListOrganizationAdmins(_ context.Context, orgID uuid.UUID) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.User
	for _, u := range r.s.data.users {
		u := u
		if u.DeletedAt == nil && u.IsAdminOf(orgID) {
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *notificationRepository) Create(_ context.Context, n *model.Notification) error {
	return r.s.write(func(st *state) error {
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = r.s.now()
		}
		st.notifications[n.ID] = *n
		return nil
	})
}

func (r *notificationRepository) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*model.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Notification
	for _, n := range r.s.data.notifications {
		n := n
		if n.UserID == userID {
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notificationRepository) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	return r.s.write(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return repository.ErrNotFound
		}
		n.Read = true
		st.notifications[id] = n
		return nil
	})
}
