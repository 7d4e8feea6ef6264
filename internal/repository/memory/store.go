// Package memory keeps the queue engine's state in process. Transactions are
// serialized and roll back by restoring a snapshot, which gives the same
// observable locking behavior as the postgres store for a single instance.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/ranking"
	"github.com/jwalitptl/queue-api/internal/repository"
)

type state struct {
	organizations map[uuid.UUID]model.Organization
	users         map[uuid.UUID]model.User
	services      map[uuid.UUID]model.Service
	resources     map[uuid.UUID]model.Resource
	slots         map[uuid.UUID]model.Slot
	appointments  map[uuid.UUID]model.Appointment
	notifications map[uuid.UUID]model.Notification
	seq           int64
}

func newState() state {
	return state{
		organizations: map[uuid.UUID]model.Organization{},
		users:         map[uuid.UUID]model.User{},
		services:      map[uuid.UUID]model.Service{},
		resources:     map[uuid.UUID]model.Resource{},
		slots:         map[uuid.UUID]model.Slot{},
		appointments:  map[uuid.UUID]model.Appointment{},
		notifications: map[uuid.UUID]model.Notification{},
	}
}

func (st state) clone() state {
	c := newState()
	for k, v := range st.organizations {
		c.organizations[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.services {
		c.services[k] = v
	}
	for k, v := range st.resources {
		c.resources[k] = v
	}
	for k, v := range st.slots {
		c.slots[k] = v
	}
	for k, v := range st.appointments {
		c.appointments[k] = v
	}
	for k, v := range st.notifications {
		c.notifications[k] = v
	}
	c.seq = st.seq
	return c
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
	now  func() time.Time

	// contended counts partition lock attempts that must still fail.
	contended map[string]int
}

var _ repository.TxManager = (*Store)(nil)

func NewStore() *Store {
	return &Store{data: newState(), now: time.Now, contended: map[string]int{}}
}

// ContendPartition makes the next n TryLockPartition calls on key fail, as
// if another transaction held the partition lock.
func (s *Store) ContendPartition(key ranking.PartitionKey, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contended[key.String()] = n
}

// SetClock replaces the time source used for created_at and updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.QueueTx) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(&tx{s: s})
}

func (s *Store) snapshot() state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.clone()
}

func (s *Store) restore(st state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = st
}

// Seed helpers. They overwrite rows with the same id.

func (s *Store) AddOrganization(org *model.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.organizations[org.ID] = *org
}

func (s *Store) AddUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = *u
}

func (s *Store) AddService(svc *model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.services[svc.ID] = *svc
}

func (s *Store) AddResource(r *model.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.resources[r.ID] = *r
}

func (s *Store) AddSlot(slot *model.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.slots[slot.ID] = *slot
}

// AddAppointment stores an appointment as is, assigning the next sequence
// number when Seq is zero.
func (s *Store) AddAppointment(apt *model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if apt.Seq == 0 {
		s.data.seq++
		apt.Seq = s.data.seq
	}
	s.data.appointments[apt.ID] = *apt
}

// member resolves the partition membership fields of apt. Callers hold mu.
func (s *Store) member(apt *model.Appointment) ranking.Member {
	m := ranking.Member{
		ServiceID:  apt.ServiceID,
		ResourceID: apt.ResourceID,
		SlotID:     apt.SlotID,
		CreatedAt:  apt.CreatedAt,
	}
	if apt.SlotID != nil {
		if slot, ok := s.data.slots[*apt.SlotID]; ok {
			start := slot.StartTime
			m.SlotStart = &start
		}
	}
	return m
}

func (s *Store) partition(key ranking.PartitionKey) []ranking.Entry {
	var entries []ranking.Entry
	for _, apt := range s.data.appointments {
		apt := apt
		if apt.DeletedAt != nil || !key.Contains(s.member(&apt)) {
			continue
		}
		entries = append(entries, ranking.Entry{
			ID:        apt.ID,
			Seq:       apt.Seq,
			Status:    apt.Status,
			CreatedAt: apt.CreatedAt,
		})
	}
	return entries
}
