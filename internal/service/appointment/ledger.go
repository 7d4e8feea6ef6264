package appointment

import (
	"context"
	"fmt"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/repository"
	apperrors "github.com/jwalitptl/queue-api/pkg/errors"
)

// admissionLimit is the booked count a slot may reach before admission is
// refused. PER_RESOURCE slots may be widened by the resource's parallel
// capacity; the ledger itself never lets booked_count pass max_capacity.
func admissionLimit(svc *model.Service, resource *model.Resource, slot *model.Slot) int {
	limit := slot.MaxCapacity
	if svc.QueueScope == model.QueueScopePerResource && resource != nil && resource.ConcurrentCapacity > limit {
		limit = resource.ConcurrentCapacity
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// reserve takes one unit of slot. The slot row must be locked by tx.
func reserve(ctx context.Context, tx repository.QueueTx, slot *model.Slot) error {
	ok, err := tx.IncrementBooked(ctx, slot.ID)
	if err != nil {
		return fmt.Errorf("failed to reserve slot: %w", err)
	}
	if !ok {
		return capacityExceeded()
	}
	slot.BookedCount++
	return nil
}

// release returns one unit of slot. Callers check the appointment status
// first so a unit is never returned twice.
func release(ctx context.Context, tx repository.QueueTx, slot *model.Slot) error {
	if err := tx.DecrementBooked(ctx, slot.ID); err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	if slot.BookedCount > 0 {
		slot.BookedCount--
	}
	return nil
}

func capacityExceeded() error {
	return apperrors.Conflict("slot is fully booked", ErrCapacityExceeded)
}
