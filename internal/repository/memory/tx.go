package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/ranking"
	"github.com/jwalitptl/queue-api/internal/repository"
)

// tx runs while the store's transaction mutex is held, so row locks are
// implied and only the data mutex is taken per call.
type tx struct {
	s *Store
}

var _ repository.QueueTx = (*tx)(nil)

func (t *tx) LockService(_ context.Context, orgID, serviceID uuid.UUID) (*model.Service, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	svc, ok := t.s.data.services[serviceID]
	if !ok || svc.OrganizationID != orgID || svc.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &svc, nil
}

func (t *tx) LockResource(_ context.Context, orgID, resourceID uuid.UUID) (*model.Resource, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	r, ok := t.s.data.resources[resourceID]
	if !ok || r.OrganizationID != orgID || r.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (t *tx) LockSlot(_ context.Context, orgID, slotID uuid.UUID) (*model.Slot, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	slot, ok := t.s.data.slots[slotID]
	if !ok || slot.OrganizationID != orgID || slot.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &slot, nil
}

func (t *tx) LockAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return t.GetAppointment(ctx, id)
}

func (t *tx) GetService(_ context.Context, id uuid.UUID) (*model.Service, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	svc, ok := t.s.data.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &svc, nil
}

func (t *tx) GetAppointment(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	apt, ok := t.s.data.appointments[id]
	if !ok || apt.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &apt, nil
}

func (t *tx) InsertAppointment(_ context.Context, apt *model.Appointment) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	t.s.data.seq++
	apt.Seq = t.s.data.seq
	apt.CreatedAt = t.s.now()
	apt.UpdatedAt = apt.CreatedAt
	t.s.data.appointments[apt.ID] = *apt
	return nil
}

func (t *tx) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, status model.AppointmentStatus, cancelledBy *string) (*model.Appointment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	apt, ok := t.s.data.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	apt.Status = status
	if cancelledBy != nil {
		by := *cancelledBy
		apt.CancelledBy = &by
	}
	apt.UpdatedAt = t.s.now()
	t.s.data.appointments[id] = apt
	return &apt, nil
}

func (t *tx) IncrementBooked(_ context.Context, slotID uuid.UUID) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	slot, ok := t.s.data.slots[slotID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if slot.BookedCount >= slot.MaxCapacity {
		return false, nil
	}
	slot.BookedCount++
	slot.UpdatedAt = t.s.now()
	t.s.data.slots[slotID] = slot
	return true, nil
}

func (t *tx) DecrementBooked(_ context.Context, slotID uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	slot, ok := t.s.data.slots[slotID]
	if !ok {
		return repository.ErrNotFound
	}
	if slot.BookedCount > 0 {
		slot.BookedCount--
	}
	slot.UpdatedAt = t.s.now()
	t.s.data.slots[slotID] = slot
	return nil
}

func (t *tx) ListPartition(_ context.Context, key ranking.PartitionKey) ([]ranking.Entry, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.partition(key), nil
}

func (t *tx) TryLockPartition(_ context.Context, key ranking.PartitionKey) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if n := t.s.contended[key.String()]; n > 0 {
		t.s.contended[key.String()] = n - 1
		return false, nil
	}
	return true, nil
}

func (t *tx) HasServing(_ context.Context, key ranking.PartitionKey) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, e := range t.s.partition(key) {
		if e.Status == model.AppointmentStatusServing {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) NextConfirmed(_ context.Context, key ranking.PartitionKey) (*model.Appointment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var next *ranking.Entry
	for _, e := range t.s.partition(key) {
		e := e
		if e.Status != model.AppointmentStatusConfirmed {
			continue
		}
		if next == nil || e.CreatedAt.Before(next.CreatedAt) ||
			(e.CreatedAt.Equal(next.CreatedAt) && e.Seq < next.Seq) {
			next = &e
		}
	}
	if next == nil {
		return nil, nil
	}
	apt := t.s.data.appointments[next.ID]
	return &apt, nil
}

func (t *tx) Savepoint(_ context.Context, fn func() error) (err error) {
	snapshot := t.s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			t.s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			t.s.restore(snapshot)
		}
	}()
	return fn()
}
