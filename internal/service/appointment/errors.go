package appointment

import "errors"

var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrResourceRequired    = errors.New("service requires a resource")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrCapacityExceeded    = errors.New("slot is fully booked")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrForbidden           = errors.New("appointment belongs to another owner")
)
