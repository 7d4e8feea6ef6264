package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusServing   AppointmentStatus = "serving"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

// Active reports whether the appointment takes part in ranking. Completed
// appointments keep their position for historical display.
func (s AppointmentStatus) Active() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed,
		AppointmentStatusServing, AppointmentStatusCompleted:
		return true
	}
	return false
}

// Waiting reports whether the appointment is still in line.
func (s AppointmentStatus) Waiting() bool {
	return s == AppointmentStatusPending || s == AppointmentStatusConfirmed
}

const (
	CancelledByUser  = "user"
	CancelledByAdmin = "admin"
)

type Appointment struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	Seq            int64             `json:"-" db:"seq"`
	OrganizationID uuid.UUID         `json:"organization_id" db:"organization_id"`
	ServiceID      uuid.UUID         `json:"service_id" db:"service_id"`
	ResourceID     *uuid.UUID        `json:"resource_id,omitempty" db:"resource_id"`
	SlotID         *uuid.UUID        `json:"slot_id,omitempty" db:"slot_id"`
	UserID         uuid.UUID         `json:"user_id" db:"user_id"`
	Status         AppointmentStatus `json:"status" db:"status"`
	TokenNumber    string            `json:"token_number" db:"token_number"`
	CancelledBy    *string           `json:"cancelled_by,omitempty" db:"cancelled_by"`
	ReminderSent   bool              `json:"-" db:"reminder_sent"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time        `json:"deleted_at,omitempty" db:"deleted_at"`
}

type BookRequest struct {
	OrganizationID uuid.UUID  `json:"organization_id" binding:"required"`
	ServiceID      uuid.UUID  `json:"service_id" binding:"required"`
	ResourceID     *uuid.UUID `json:"resource_id"`
	SlotID         *uuid.UUID `json:"slot_id"`
	UserID         uuid.UUID  `json:"-"`
}

type CancelRequest struct {
	AppointmentID uuid.UUID
	UserID        uuid.UUID
}

type StatusChangeRequest struct {
	AppointmentID  uuid.UUID         `json:"-"`
	Status         AppointmentStatus `json:"status" binding:"required,queue_status"`
	OrganizationID uuid.UUID         `json:"-"`
}

// Booking is the result of a successful admission.
type Booking struct {
	Appointment *Appointment `json:"appointment"`
	QueueNumber int          `json:"queue_number"`
}

// AppointmentView is an appointment annotated with its live rank. QueueNumber
// is zero for appointments outside the active set.
type AppointmentView struct {
	*Appointment
	QueueNumber int `json:"queue_number"`
}

type AppointmentFilter struct {
	Status    AppointmentStatus `form:"status"`
	ServiceID *uuid.UUID        `form:"service_id"`
	TimeRange
}

// Reminder is an upcoming slot appointment joined with what the reminder
// email needs.
type Reminder struct {
	AppointmentID uuid.UUID `db:"appointment_id"`
	TokenNumber   string    `db:"token_number"`
	UserName      string    `db:"user_name"`
	UserEmail     string    `db:"user_email"`
	ServiceName   string    `db:"service_name"`
	StartTime     time.Time `db:"start_time"`
}
