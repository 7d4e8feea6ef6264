package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeBooking      NotificationType = "booking"
	NotificationTypeCancellation NotificationType = "cancellation"
	NotificationTypeStatus       NotificationType = "status"
)

// Notification is an in-app message shown to a user.
type Notification struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	UserID         uuid.UUID        `json:"user_id" db:"user_id"`
	OrganizationID *uuid.UUID       `json:"organization_id,omitempty" db:"organization_id"`
	Type           NotificationType `json:"type" db:"type"`
	Title          string           `json:"title" db:"title"`
	Message        string           `json:"message" db:"message"`
	Link           string           `json:"link,omitempty" db:"link"`
	Read           bool             `json:"read" db:"is_read"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}
