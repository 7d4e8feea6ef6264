package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/ranking"
	"github.com/jwalitptl/queue-api/internal/repository"
)

const (
	serviceColumns     = `id, organization_id, name, queue_type, queue_scope, estimated_service_time, created_at, updated_at, deleted_at`
	resourceColumns    = `id, organization_id, name, concurrent_capacity, created_at, updated_at, deleted_at`
	slotColumns        = `id, organization_id, resource_id, start_time, end_time, max_capacity, booked_count, is_active, created_at, updated_at, deleted_at`
	appointmentColumns = `a.id, a.seq, a.organization_id, a.service_id, a.resource_id, a.slot_id, a.user_id, a.status,
		a.token_number, a.cancelled_by, a.reminder_sent, a.created_at, a.updated_at, a.deleted_at`
)

// TxManager opens queue transactions on PostgreSQL.
type TxManager struct {
	base *BaseRepository
}

func NewTxManager(base *BaseRepository) *TxManager {
	return &TxManager{base: base}
}

var _ repository.TxManager = (*TxManager)(nil)

func (m *TxManager) WithTx(ctx context.Context, fn func(repository.QueueTx) error) error {
	return m.base.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&queueTx{tx: tx})
	})
}

type queueTx struct {
	tx *sqlx.Tx
}

func (t *queueTx) LockService(ctx context.Context, orgID, serviceID uuid.UUID) (*model.Service, error) {
	var svc model.Service
	query := `SELECT ` + serviceColumns + ` FROM services
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL FOR UPDATE`
	if err := t.tx.GetContext(ctx, &svc, query, serviceID, orgID); err != nil {
		return nil, notFound(err)
	}
	return &svc, nil
}

func (t *queueTx) LockResource(ctx context.Context, orgID, resourceID uuid.UUID) (*model.Resource, error) {
	var res model.Resource
	query := `SELECT ` + resourceColumns + ` FROM resources
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL FOR UPDATE`
	if err := t.tx.GetContext(ctx, &res, query, resourceID, orgID); err != nil {
		return nil, notFound(err)
	}
	return &res, nil
}

func (t *queueTx) LockSlot(ctx context.Context, orgID, slotID uuid.UUID) (*model.Slot, error) {
	var slot model.Slot
	query := `SELECT ` + slotColumns + ` FROM slots
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL FOR UPDATE`
	if err := t.tx.GetContext(ctx, &slot, query, slotID, orgID); err != nil {
		return nil, notFound(err)
	}
	return &slot, nil
}

func (t *queueTx) LockAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var apt model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments a
		WHERE a.id = $1 AND a.deleted_at IS NULL FOR UPDATE`
	if err := t.tx.GetContext(ctx, &apt, query, id); err != nil {
		return nil, notFound(err)
	}
	return &apt, nil
}

func (t *queueTx) GetService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var svc model.Service
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`
	if err := t.tx.GetContext(ctx, &svc, query, id); err != nil {
		return nil, notFound(err)
	}
	return &svc, nil
}

func (t *queueTx) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var apt model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments a WHERE a.id = $1 AND a.deleted_at IS NULL`
	if err := t.tx.GetContext(ctx, &apt, query, id); err != nil {
		return nil, notFound(err)
	}
	return &apt, nil
}

// InsertAppointment stamps created_at with clock_timestamp() so that arrival
// order reflects the moment the row was written, after every lock was taken.
func (t *queueTx) InsertAppointment(ctx context.Context, apt *model.Appointment) error {
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	query := `
		INSERT INTO appointments (
			id, organization_id, service_id, resource_id, slot_id,
			user_id, status, token_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq, created_at, updated_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		apt.ID,
		apt.OrganizationID,
		apt.ServiceID,
		apt.ResourceID,
		apt.SlotID,
		apt.UserID,
		apt.Status,
		apt.TokenNumber,
	).Scan(&apt.Seq, &apt.CreatedAt, &apt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	return nil
}

func (t *queueTx) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, cancelledBy *string) (*model.Appointment, error) {
	query := `
		UPDATE appointments a
		SET status = $2, cancelled_by = COALESCE($3, a.cancelled_by), updated_at = clock_timestamp()
		WHERE a.id = $1 AND a.deleted_at IS NULL
		RETURNING ` + appointmentColumns
	var apt model.Appointment
	if err := t.tx.GetContext(ctx, &apt, query, id, status, cancelledBy); err != nil {
		return nil, notFound(err)
	}
	return &apt, nil
}

func (t *queueTx) IncrementBooked(ctx context.Context, slotID uuid.UUID) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE slots SET booked_count = booked_count + 1, updated_at = now()
		WHERE id = $1 AND booked_count < max_capacity`, slotID)
	if err != nil {
		return false, fmt.Errorf("failed to reserve slot capacity: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (t *queueTx) DecrementBooked(ctx context.Context, slotID uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE slots SET booked_count = GREATEST(booked_count - 1, 0), updated_at = now()
		WHERE id = $1`, slotID)
	if err != nil {
		return fmt.Errorf("failed to release slot capacity: %w", err)
	}
	return nil
}

func (t *queueTx) ListPartition(ctx context.Context, key ranking.PartitionKey) ([]ranking.Entry, error) {
	return listPartition(ctx, t.tx, key)
}

// TryLockPartition uses a transaction scoped advisory lock keyed by the
// partition name; it is released on commit or rollback.
func (t *queueTx) TryLockPartition(ctx context.Context, key ranking.PartitionKey) (bool, error) {
	var locked bool
	if err := t.tx.GetContext(ctx, &locked, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return false, fmt.Errorf("failed to lock partition %s: %w", key, err)
	}
	return locked, nil
}

func (t *queueTx) HasServing(ctx context.Context, key ranking.PartitionKey) (bool, error) {
	where, args := partitionFilter(key, 1)
	query := `SELECT EXISTS (SELECT 1 FROM appointments a WHERE ` + where +
		` AND a.status = 'serving' AND a.deleted_at IS NULL)`
	var exists bool
	if err := t.tx.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("failed to check serving appointment: %w", err)
	}
	return exists, nil
}

func (t *queueTx) NextConfirmed(ctx context.Context, key ranking.PartitionKey) (*model.Appointment, error) {
	where, args := partitionFilter(key, 1)
	query := `SELECT ` + appointmentColumns + ` FROM appointments a WHERE ` + where + `
		AND a.status = 'confirmed' AND a.deleted_at IS NULL
		ORDER BY a.created_at, a.seq
		LIMIT 1
		FOR UPDATE SKIP LOCKED`
	var apt model.Appointment
	if err := t.tx.GetContext(ctx, &apt, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select next confirmed appointment: %w", err)
	}
	return &apt, nil
}

func (t *queueTx) Savepoint(ctx context.Context, fn func() error) error {
	if _, err := t.tx.ExecContext(ctx, `SAVEPOINT queue_advance`); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT queue_advance`); rbErr != nil {
			return fmt.Errorf("failed to roll back savepoint: %v (after %w)", rbErr, err)
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `RELEASE SAVEPOINT queue_advance`); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func listPartition(ctx context.Context, q sqlx.QueryerContext, key ranking.PartitionKey) ([]ranking.Entry, error) {
	where, args := partitionFilter(key, 1)
	query := `SELECT a.id, a.seq, a.status, a.created_at FROM appointments a
		WHERE ` + where + ` AND a.deleted_at IS NULL
		ORDER BY a.created_at, a.seq`
	var entries []ranking.Entry
	if err := sqlx.SelectContext(ctx, q, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list partition %s: %w", key, err)
	}
	return entries, nil
}
