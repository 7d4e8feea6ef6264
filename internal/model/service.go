package model

import (
	"github.com/google/uuid"
)

type QueueType string

const (
	QueueTypeStatic  QueueType = "STATIC"
	QueueTypeDynamic QueueType = "DYNAMIC"
)

type QueueScope string

const (
	QueueScopePerResource QueueScope = "PER_RESOURCE"
	QueueScopeCentral     QueueScope = "CENTRAL"
)

// Service is a bookable offering of an organization. Its queue type and
// scope decide how appointments are partitioned and how waits are estimated.
type Service struct {
	Base
	OrganizationID       uuid.UUID  `json:"organization_id" db:"organization_id"`
	Name                 string     `json:"name" db:"name"`
	QueueType            QueueType  `json:"queue_type" db:"queue_type"`
	QueueScope           QueueScope `json:"queue_scope" db:"queue_scope"`
	EstimatedServiceTime int        `json:"estimated_service_time" db:"estimated_service_time"` // minutes
}

type Resource struct {
	Base
	OrganizationID     uuid.UUID `json:"organization_id" db:"organization_id"`
	Name               string    `json:"name" db:"name"`
	ConcurrentCapacity int       `json:"concurrent_capacity" db:"concurrent_capacity"`
}
