package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/repository"
)

// Slot writes lock the owning resource row first, which serializes overlap
// checks per resource and matches the lock order used by admissions.

func (r *slotRepository) Create(ctx context.Context, slot *model.Slot) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockResourceRow(ctx, tx, slot.OrganizationID, slot.ResourceID); err != nil {
			return err
		}
		if slot.ID == uuid.Nil {
			slot.ID = uuid.New()
		}
		if err := checkOverlap(ctx, tx, slot); err != nil {
			return err
		}

		query := `
			INSERT INTO slots (
				id, organization_id, resource_id, start_time, end_time,
				max_capacity, booked_count, is_active
			) VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			slot.ID,
			slot.OrganizationID,
			slot.ResourceID,
			slot.StartTime,
			slot.EndTime,
			slot.MaxCapacity,
			slot.IsActive,
		).Scan(&slot.CreatedAt, &slot.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create slot: %w", err)
		}
		slot.BookedCount = 0
		return nil
	})
}

func (r *slotRepository) Get(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	var slot model.Slot
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, notFound(err)
	}
	return &slot, nil
}

func (r *slotRepository) Update(ctx context.Context, slot *model.Slot) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockResourceRow(ctx, tx, slot.OrganizationID, slot.ResourceID); err != nil {
			return err
		}
		if err := lockUnusedSlot(ctx, tx, slot.OrganizationID, slot.ID); err != nil {
			return err
		}
		if err := checkOverlap(ctx, tx, slot); err != nil {
			return err
		}

		query := `
			UPDATE slots
			SET start_time = $2, end_time = $3, max_capacity = $4, is_active = $5, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			slot.ID,
			slot.StartTime,
			slot.EndTime,
			slot.MaxCapacity,
			slot.IsActive,
		).Scan(&slot.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update slot: %w", notFound(err))
		}
		return nil
	})
}

func (r *slotRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockUnusedSlot(ctx, tx, orgID, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete slot: %w", err)
		}
		return checkAffected(res)
	})
}

func (r *slotRepository) ListAvailable(ctx context.Context, orgID uuid.UUID, filter *model.SlotFilter) ([]*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots
		WHERE organization_id = $1 AND is_active AND deleted_at IS NULL AND booked_count < max_capacity`
	args := []interface{}{orgID}

	if filter != nil {
		if filter.ResourceID != nil {
			args = append(args, *filter.ResourceID)
			query += fmt.Sprintf(" AND resource_id = $%d", len(args))
		}
		if !filter.From.IsZero() {
			args = append(args, filter.From)
			query += fmt.Sprintf(" AND start_time >= $%d", len(args))
		}
		if !filter.To.IsZero() {
			args = append(args, filter.To)
			query += fmt.Sprintf(" AND start_time < $%d", len(args))
		}
	}
	query += " ORDER BY start_time, id"

	var slots []*model.Slot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return slots, nil
}

func lockResourceRow(ctx context.Context, tx *sqlx.Tx, orgID, resourceID uuid.UUID) error {
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `SELECT id FROM resources
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL FOR UPDATE`, resourceID, orgID)
	return notFound(err)
}

func lockUnusedSlot(ctx context.Context, tx *sqlx.Tx, orgID, slotID uuid.UUID) error {
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `SELECT id FROM slots
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL FOR UPDATE`, slotID, orgID)
	if err != nil {
		return notFound(err)
	}

	var used bool
	if err := tx.GetContext(ctx, &used, `SELECT EXISTS (SELECT 1 FROM appointments WHERE slot_id = $1)`, slotID); err != nil {
		return fmt.Errorf("failed to check slot appointments: %w", err)
	}
	if used {
		return repository.ErrSlotInUse
	}
	return nil
}

func checkOverlap(ctx context.Context, tx *sqlx.Tx, slot *model.Slot) error {
	var overlap bool
	err := tx.GetContext(ctx, &overlap, `
		SELECT EXISTS (
			SELECT 1 FROM slots
			WHERE resource_id = $1 AND id <> $2 AND deleted_at IS NULL
				AND start_time < $3 AND end_time > $4
		)`, slot.ResourceID, slot.ID, slot.EndTime, slot.StartTime)
	if err != nil {
		return fmt.Errorf("failed to check slot overlap: %w", err)
	}
	if overlap {
		return repository.ErrSlotOverlap
	}
	return nil
}
