package slot

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/queue-api/pkg/errors"
)

type fixture struct {
	store    *memory.Store
	svc      *Service
	orgID    uuid.UUID
	resource *model.Resource
	start    time.Time
}

func newFixture() *fixture {
	store := memory.NewStore()
	f := &fixture{
		store: store,
		svc:   NewService(memory.NewSlotRepository(store), memory.NewResourceRepository(store)),
		orgID: uuid.New(),
		start: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
	}
	f.resource = &model.Resource{Base: model.Base{ID: uuid.New()}, OrganizationID: f.orgID, Name: "desk", ConcurrentCapacity: 3}
	store.AddResource(f.resource)
	return f
}

func (f *fixture) request(offset time.Duration, capacity int) *model.CreateSlotRequest {
	return &model.CreateSlotRequest{
		ResourceID:  f.resource.ID,
		StartTime:   f.start.Add(offset),
		EndTime:     f.start.Add(offset + 30*time.Minute),
		MaxCapacity: capacity,
	}
}

func code(t *testing.T, err error) apperrors.ErrorCode {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.Code
}

func TestCreate(t *testing.T) {
	f := newFixture()

	slot, err := f.svc.Create(context.Background(), f.orgID, f.request(0, 2))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, slot.ID)
	assert.True(t, slot.IsActive)
	assert.Equal(t, 0, slot.BookedCount)

	_, err = f.svc.Create(context.Background(), f.orgID, f.request(15*time.Minute, 1))
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = f.svc.Create(context.Background(), f.orgID, f.request(time.Hour, 4))
	assert.Equal(t, apperrors.ErrBadRequest, code(t, err))

	_, err = f.svc.Create(context.Background(), uuid.New(), f.request(2*time.Hour, 1))
	assert.Equal(t, apperrors.ErrNotFound, code(t, err))

	bad := f.request(3*time.Hour, 1)
	bad.EndTime = bad.StartTime
	_, err = f.svc.Create(context.Background(), f.orgID, bad)
	assert.Equal(t, apperrors.ErrBadRequest, code(t, err))
}

func TestUpdateAndDeleteLockedSlot(t *testing.T) {
	f := newFixture()
	slot, err := f.svc.Create(context.Background(), f.orgID, f.request(0, 2))
	require.NoError(t, err)

	capacity := 3
	updated, err := f.svc.Update(context.Background(), f.orgID, slot.ID, &model.UpdateSlotRequest{MaxCapacity: &capacity})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.MaxCapacity)

	f.store.AddAppointment(&model.Appointment{
		ID: uuid.New(), OrganizationID: f.orgID, SlotID: &slot.ID,
		Status: model.AppointmentStatusCancelled,
	})

	capacity = 1
	_, err = f.svc.Update(context.Background(), f.orgID, slot.ID, &model.UpdateSlotRequest{MaxCapacity: &capacity})
	assert.ErrorIs(t, err, ErrSlotLocked)
	assert.Equal(t, apperrors.ErrConflict, code(t, err))

	err = f.svc.Delete(context.Background(), f.orgID, slot.ID)
	assert.ErrorIs(t, err, ErrSlotLocked)
}

func TestDeleteUnusedSlot(t *testing.T) {
	f := newFixture()
	slot, err := f.svc.Create(context.Background(), f.orgID, f.request(0, 1))
	require.NoError(t, err)

	assert.Equal(t, apperrors.ErrNotFound, code(t, f.svc.Delete(context.Background(), uuid.New(), slot.ID)))
	require.NoError(t, f.svc.Delete(context.Background(), f.orgID, slot.ID))
	assert.Equal(t, apperrors.ErrNotFound, code(t, f.svc.Delete(context.Background(), f.orgID, slot.ID)))
}

func TestListAvailable(t *testing.T) {
	f := newFixture()
	open, err := f.svc.Create(context.Background(), f.orgID, f.request(0, 2))
	require.NoError(t, err)
	full := &model.Slot{
		Base: model.Base{ID: uuid.New()}, OrganizationID: f.orgID, ResourceID: f.resource.ID,
		StartTime: f.start.Add(time.Hour), EndTime: f.start.Add(90 * time.Minute),
		MaxCapacity: 1, BookedCount: 1, IsActive: true,
	}
	f.store.AddSlot(full)

	slots, err := f.svc.ListAvailable(context.Background(), f.orgID, &model.SlotFilter{})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, open.ID, slots[0].ID)
	assert.Equal(t, 2, slots[0].RemainingCapacity)

	_, err = f.svc.ListAvailable(context.Background(), f.orgID, &model.SlotFilter{
		TimeRange: model.TimeRange{From: f.start.Add(time.Hour), To: f.start},
	})
	assert.Equal(t, apperrors.ErrBadRequest, code(t, err))
}
