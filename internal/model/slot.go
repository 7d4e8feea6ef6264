package model

import (
	"time"

	"github.com/google/uuid"
)

type Slot struct {
	Base
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	ResourceID     uuid.UUID `json:"resource_id" db:"resource_id"`
	StartTime      time.Time `json:"start_time" db:"start_time"`
	EndTime        time.Time `json:"end_time" db:"end_time"`
	MaxCapacity    int       `json:"max_capacity" db:"max_capacity"`
	BookedCount    int       `json:"booked_count" db:"booked_count"`
	IsActive       bool      `json:"is_active" db:"is_active"`
}

func (s *Slot) RemainingCapacity() int {
	if remaining := s.MaxCapacity - s.BookedCount; remaining > 0 {
		return remaining
	}
	return 0
}

type CreateSlotRequest struct {
	ResourceID  uuid.UUID `json:"resource_id" binding:"required"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
	MaxCapacity int       `json:"max_capacity" binding:"required,min=1"`
}

type UpdateSlotRequest struct {
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	MaxCapacity *int       `json:"max_capacity" binding:"omitempty,min=1"`
	IsActive    *bool      `json:"is_active"`
}

type SlotFilter struct {
	ResourceID *uuid.UUID `form:"resource_id"`
	TimeRange
}

type AvailableSlot struct {
	*Slot
	RemainingCapacity int `json:"remaining_capacity"`
}
