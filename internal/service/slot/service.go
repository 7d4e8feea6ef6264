package slot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/repository"
	apperrors "github.com/jwalitptl/queue-api/pkg/errors"
)

var (
	// ErrSlotLocked is returned when a slot that already has appointments
	// would be edited or deleted.
	ErrSlotLocked = errors.New("slot has appointments and cannot be changed")
	ErrOverlap    = errors.New("slot overlaps an existing slot of the resource")
)

type Service struct {
	slots     repository.SlotRepository
	resources repository.ResourceRepository
}

func NewService(slots repository.SlotRepository, resources repository.ResourceRepository) *Service {
	return &Service{slots: slots, resources: resources}
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, req *model.CreateSlotRequest) (*model.Slot, error) {
	resource, err := s.resources.Get(ctx, orgID, req.ResourceID)
	if err != nil {
		return nil, mapError(err, "resource")
	}

	slot := &model.Slot{
		OrganizationID: orgID,
		ResourceID:     resource.ID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		MaxCapacity:    req.MaxCapacity,
		IsActive:       true,
	}
	if err := validate(slot, resource); err != nil {
		return nil, err
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, mapError(err, "slot")
	}
	return slot, nil
}

// Update edits a slot. Slots with appointments are immutable.
func (s *Service) Update(ctx context.Context, orgID, id uuid.UUID, req *model.UpdateSlotRequest) (*model.Slot, error) {
	slot, err := s.get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if slot.BookedCount > 0 {
		return nil, apperrors.Conflict("slot has appointments and cannot be changed", ErrSlotLocked)
	}

	if req.StartTime != nil {
		slot.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		slot.EndTime = *req.EndTime
	}
	if req.MaxCapacity != nil {
		slot.MaxCapacity = *req.MaxCapacity
	}
	if req.IsActive != nil {
		slot.IsActive = *req.IsActive
	}

	resource, err := s.resources.Get(ctx, orgID, slot.ResourceID)
	if err != nil {
		return nil, mapError(err, "resource")
	}
	if err := validate(slot, resource); err != nil {
		return nil, err
	}
	if err := s.slots.Update(ctx, slot); err != nil {
		return nil, mapError(err, "slot")
	}
	return slot, nil
}

// Delete removes a slot. Slots with appointments are immutable.
func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	if err := s.slots.Delete(ctx, orgID, id); err != nil {
		return mapError(err, "slot")
	}
	return nil
}

// ListAvailable returns active slots of the organization that still have
// room, earliest first.
func (s *Service) ListAvailable(ctx context.Context, orgID uuid.UUID, filter *model.SlotFilter) ([]*model.AvailableSlot, error) {
	if filter != nil && !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return nil, apperrors.BadRequest("to must be after from", nil)
	}
	slots, err := s.slots.ListAvailable(ctx, orgID, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	available := make([]*model.AvailableSlot, 0, len(slots))
	for _, slot := range slots {
		available = append(available, &model.AvailableSlot{Slot: slot, RemainingCapacity: slot.RemainingCapacity()})
	}
	return available, nil
}

func (s *Service) get(ctx context.Context, orgID, id uuid.UUID) (*model.Slot, error) {
	slot, err := s.slots.Get(ctx, id)
	if err != nil {
		return nil, mapError(err, "slot")
	}
	if slot.OrganizationID != orgID {
		return nil, apperrors.NotFound("slot", repository.ErrNotFound)
	}
	return slot, nil
}

func validate(slot *model.Slot, resource *model.Resource) error {
	if !slot.EndTime.After(slot.StartTime) {
		return apperrors.BadRequest("end_time must be after start_time", nil)
	}
	if slot.MaxCapacity < 1 {
		return apperrors.BadRequest("max_capacity must be at least 1", nil)
	}
	if slot.MaxCapacity > resource.ConcurrentCapacity {
		return apperrors.BadRequest(
			fmt.Sprintf("max_capacity cannot exceed the resource's concurrent capacity of %d", resource.ConcurrentCapacity), nil)
	}
	return nil
}

func mapError(err error, resource string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, repository.ErrSlotInUse):
		return apperrors.Conflict("slot has appointments and cannot be changed", ErrSlotLocked)
	case errors.Is(err, repository.ErrSlotOverlap):
		return apperrors.Conflict("slot overlaps an existing slot of the resource", ErrOverlap)
	}
	return apperrors.Internal(fmt.Errorf("failed to save %s: %w", resource, err))
}
