package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/ranking"
)

var (
	// ErrNotFound is returned for missing rows and rows owned by another organization.
	ErrNotFound = errors.New("record not found")
	// ErrSlotInUse is returned when a slot with appointments would be changed.
	ErrSlotInUse = errors.New("slot has appointments")
	// ErrSlotOverlap is returned when a slot would overlap another slot of its resource.
	ErrSlotOverlap = errors.New("slot overlaps an existing slot")
)

// All repository interfaces in one file
type (
	// TxManager runs fn inside one database transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	TxManager interface {
		WithTx(ctx context.Context, fn func(tx QueueTx) error) error
	}

	// QueueTx holds the operations the queue engine performs while a
	// transaction is open. Lock methods take exclusive row locks; callers
	// acquire them in the order Service, Resource, Slot, Appointment.
	QueueTx interface {
		LockService(ctx context.Context, orgID, serviceID uuid.UUID) (*model.Service, error)
		LockResource(ctx context.Context, orgID, resourceID uuid.UUID) (*model.Resource, error)
		LockSlot(ctx context.Context, orgID, slotID uuid.UUID) (*model.Slot, error)
		LockAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error)

		GetService(ctx context.Context, id uuid.UUID) (*model.Service, error)
		GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error)

		// InsertAppointment assigns Seq, CreatedAt and UpdatedAt.
		InsertAppointment(ctx context.Context, apt *model.Appointment) error
		UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, cancelledBy *string) (*model.Appointment, error)

		// IncrementBooked adds one reservation unless the slot is full and
		// reports whether it did.
		IncrementBooked(ctx context.Context, slotID uuid.UUID) (bool, error)
		// DecrementBooked removes one reservation, never going below zero.
		DecrementBooked(ctx context.Context, slotID uuid.UUID) error

		ListPartition(ctx context.Context, key ranking.PartitionKey) ([]ranking.Entry, error)
		// TryLockPartition takes a transaction scoped lock on the partition
		// without waiting and reports whether it was acquired.
		TryLockPartition(ctx context.Context, key ranking.PartitionKey) (bool, error)
		HasServing(ctx context.Context, key ranking.PartitionKey) (bool, error)
		// NextConfirmed locks the oldest confirmed appointment of the
		// partition, skipping rows locked by others. It returns nil when none is free.
		NextConfirmed(ctx context.Context, key ranking.PartitionKey) (*model.Appointment, error)

		// Savepoint runs fn so that its writes are undone on error without
		// aborting the enclosing transaction.
		Savepoint(ctx context.Context, fn func() error) error
	}

	AppointmentRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Appointment, error)
		ListByOrganization(ctx context.Context, orgID uuid.UUID, filter *model.AppointmentFilter) ([]*model.Appointment, error)
		ListPartition(ctx context.Context, key ranking.PartitionKey) ([]ranking.Entry, error)
		// RecentCompleted returns up to limit completed appointments of the
		// key's population, newest completion first.
		RecentCompleted(ctx context.Context, key ranking.PartitionKey, limit int) ([]ranking.Sample, error)
		// ListDueReminders returns confirmed slot appointments without a
		// reminder whose slot starts in (from, to].
		ListDueReminders(ctx context.Context, from, to time.Time) ([]*model.Reminder, error)
		MarkReminderSent(ctx context.Context, id uuid.UUID) error
	}

	ServiceRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
	}

	ResourceRepository interface {
		Get(ctx context.Context, orgID, id uuid.UUID) (*model.Resource, error)
	}

	SlotRepository interface {
		// Create inserts the slot unless it overlaps another slot of the resource.
		Create(ctx context.Context, slot *model.Slot) error
		Get(ctx context.Context, id uuid.UUID) (*model.Slot, error)
		// Update rewrites a slot that has no appointments.
		Update(ctx context.Context, slot *model.Slot) error
		// Delete removes a slot that has no appointments.
		Delete(ctx context.Context, orgID, id uuid.UUID) error
		ListAvailable(ctx context.Context, orgID uuid.UUID, filter *model.SlotFilter) ([]*model.Slot, error)
	}

	IdentityRepository interface {
		GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetOrganization(ctx context.Context, id uuid.UUID) (*model.Organization, error)
		ListOrganizationAdmins(ctx context.Context, orgID uuid.UUID) ([]*model.User, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
		ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.Notification, error)
		MarkRead(ctx context.Context, userID, id uuid.UUID) error
	}
)
