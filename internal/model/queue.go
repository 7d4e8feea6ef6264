package model

import (
	"github.com/google/uuid"
)

// QueueStatus is the momentary position of one appointment in its queue.
type QueueStatus struct {
	AppointmentID        uuid.UUID         `json:"appointment_id"`
	Status               AppointmentStatus `json:"status"`
	Rank                 int               `json:"rank"`
	CurrentServingRank   int               `json:"current_serving_rank"`
	PeopleAhead          int               `json:"people_ahead"`
	EstimatedWaitMinutes int               `json:"estimated_wait_minutes"`
}

type QueueEventType string

const (
	QueueEventBooking      QueueEventType = "booking"
	QueueEventCancellation QueueEventType = "cancellation"
	QueueEventStatusChange QueueEventType = "status_change"
	QueueEventAdvancement  QueueEventType = "queue_advancement"
)

// QueueEvent is the payload broadcast to realtime observers after a queue
// changes.
type QueueEvent struct {
	Type               QueueEventType     `json:"type"`
	PartitionKey       string             `json:"partitionKey"`
	CurrentServingRank int                `json:"currentServingRank"`
	EstimatedWait      int                `json:"estimatedWait"`
	OrganizationID     uuid.UUID          `json:"organizationId"`
	ServiceID          uuid.UUID          `json:"serviceId"`
	ResourceID         *uuid.UUID         `json:"resourceId,omitempty"`
	AppointmentID      *uuid.UUID         `json:"appointmentId,omitempty"`
	Status             *AppointmentStatus `json:"status,omitempty"`
}
