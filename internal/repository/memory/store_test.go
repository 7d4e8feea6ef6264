package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/ranking"
	"github.com/jwalitptl/queue-api/internal/repository"
)

func seedSlot(s *Store, capacity int) (*model.Slot, uuid.UUID) {
	orgID := uuid.New()
	slot := &model.Slot{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: orgID,
		ResourceID:     uuid.New(),
		StartTime:      time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC),
		MaxCapacity:    capacity,
		IsActive:       true,
	}
	s.AddSlot(slot)
	return slot, orgID
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	slot, _ := seedSlot(s, 2)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx repository.QueueTx) error {
		ok, err := tx.IncrementBooked(ctx, slot.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.InsertAppointment(ctx, &model.Appointment{SlotID: &slot.ID, Status: model.AppointmentStatusConfirmed}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := NewSlotRepository(s).Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedCount)
	entries, err := NewAppointmentRepository(s).ListPartition(ctx, ranking.PartitionKey{Kind: ranking.KindSlot, SlotID: slot.ID})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIncrementBookedStopsAtCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	slot, _ := seedSlot(s, 1)

	err := s.WithTx(ctx, func(tx repository.QueueTx) error {
		ok, err := tx.IncrementBooked(ctx, slot.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.IncrementBooked(ctx, slot.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, tx.DecrementBooked(ctx, slot.ID))
		require.NoError(t, tx.DecrementBooked(ctx, slot.ID))
		return nil
	})
	require.NoError(t, err)

	got, _ := NewSlotRepository(s).Get(ctx, slot.ID)
	assert.Equal(t, 0, got.BookedCount, "never below zero")
}

func TestSavepointUndoesOnlyInnerWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	slot, _ := seedSlot(s, 5)

	err := s.WithTx(ctx, func(tx repository.QueueTx) error {
		_, err := tx.IncrementBooked(ctx, slot.ID)
		require.NoError(t, err)
		spErr := tx.Savepoint(ctx, func() error {
			_, err := tx.IncrementBooked(ctx, slot.ID)
			require.NoError(t, err)
			return errors.New("inner")
		})
		assert.Error(t, spErr)
		return nil
	})
	require.NoError(t, err)

	got, _ := NewSlotRepository(s).Get(ctx, slot.ID)
	assert.Equal(t, 1, got.BookedCount)
}

func TestNextConfirmedPicksOldest(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	slot, orgID := seedSlot(s, 5)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	var first uuid.UUID
	err := s.WithTx(ctx, func(tx repository.QueueTx) error {
		for i := 0; i < 3; i++ {
			apt := &model.Appointment{OrganizationID: orgID, SlotID: &slot.ID, Status: model.AppointmentStatusConfirmed}
			require.NoError(t, tx.InsertAppointment(ctx, apt))
			if i == 0 {
				first = apt.ID
			}
		}
		return nil
	})
	require.NoError(t, err)

	key := ranking.PartitionKey{Kind: ranking.KindSlot, SlotID: slot.ID}
	_ = s.WithTx(ctx, func(tx repository.QueueTx) error {
		next, err := tx.NextConfirmed(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, first, next.ID, "equal timestamps fall back to insertion order")

		serving, err := tx.HasServing(ctx, key)
		require.NoError(t, err)
		assert.False(t, serving)
		return nil
	})
}

func TestSlotRepositoryGuardsBookedSlots(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := NewSlotRepository(s)
	slot, orgID := seedSlot(s, 2)

	overlapping := *slot
	overlapping.ID = uuid.Nil
	overlapping.StartTime = slot.StartTime.Add(30 * time.Minute)
	overlapping.EndTime = slot.EndTime.Add(30 * time.Minute)
	assert.ErrorIs(t, repo.Create(ctx, &overlapping), repository.ErrSlotOverlap)

	s.AddAppointment(&model.Appointment{ID: uuid.New(), OrganizationID: orgID, SlotID: &slot.ID, Status: model.AppointmentStatusCancelled})

	slot.MaxCapacity = 3
	assert.ErrorIs(t, repo.Update(ctx, slot), repository.ErrSlotInUse)
	assert.ErrorIs(t, repo.Delete(ctx, orgID, slot.ID), repository.ErrSlotInUse)
	assert.ErrorIs(t, repo.Delete(ctx, uuid.New(), slot.ID), repository.ErrNotFound)
}

func TestListDueRemindersWindowBounds(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	slot, orgID := seedSlot(s, 2)
	userID := uuid.New()
	s.AddUser(&model.User{Base: model.Base{ID: userID}, Name: "Asha", Email: "asha@example.com"})
	s.AddAppointment(&model.Appointment{
		ID: uuid.New(), OrganizationID: orgID, SlotID: &slot.ID, UserID: userID, Status: model.AppointmentStatusConfirmed,
	})
	repo := NewAppointmentRepository(s)

	due, err := repo.ListDueReminders(ctx, slot.StartTime.Add(-15*time.Minute), slot.StartTime)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	due, err = repo.ListDueReminders(ctx, slot.StartTime, slot.StartTime.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)
}
