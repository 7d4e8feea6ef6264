// Package ranking orders the appointments of one queue partition and derives
// positions and wait estimates from that order. It performs no I/O.
package ranking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
)

// Kind identifies how a partition groups appointments.
type Kind int

const (
	// KindSlot groups the appointments of one service in one slot
	// (PER_RESOURCE with slot). Slots belong to resources, so several services
	// may share one.
	KindSlot Kind = iota + 1
	// KindResourceDay groups slotless appointments of a service and resource per day.
	KindResourceDay
	// KindServiceSlotStart groups appointments of a service across every slot
	// starting at the same instant (CENTRAL with slot).
	KindServiceSlotStart
	// KindServiceDay groups slotless appointments of a service per day (CENTRAL).
	KindServiceDay

	// History kinds are never queues. They widen the sample population used
	// for DYNAMIC wait estimates when the queue itself is slot-scoped.
	KindResourceHistory
	KindServiceHistory
)

// PartitionKey names one queue. Fields not used by Kind are zero.
type PartitionKey struct {
	Kind       Kind
	ServiceID  uuid.UUID
	ResourceID uuid.UUID
	SlotID     uuid.UUID
	SlotStart  time.Time
	Day        time.Time
}

// Member is what a partition needs to know about an appointment to decide
// whether it belongs.
type Member struct {
	ServiceID  uuid.UUID
	ResourceID *uuid.UUID
	SlotID     *uuid.UUID
	SlotStart  *time.Time
	CreatedAt  time.Time
}

// NewPartitionKey derives the partition of an appointment. slotStart must be
// set whenever m.SlotID is. Days are cut in loc.
func NewPartitionKey(svc *model.Service, m Member, loc *time.Location) (PartitionKey, error) {
	if loc == nil {
		loc = time.UTC
	}
	key := PartitionKey{ServiceID: svc.ID}

	switch svc.QueueScope {
	case model.QueueScopePerResource:
		if m.SlotID != nil {
			key.Kind = KindSlot
			key.SlotID = *m.SlotID
			return key, nil
		}
		if m.ResourceID == nil {
			return PartitionKey{}, fmt.Errorf("service %s is scoped per resource but appointment has none", svc.ID)
		}
		key.Kind = KindResourceDay
		key.ResourceID = *m.ResourceID
		key.Day = StartOfDay(m.CreatedAt, loc)
	case model.QueueScopeCentral:
		if m.SlotID != nil {
			if m.SlotStart == nil {
				return PartitionKey{}, fmt.Errorf("slot %s start time unknown", *m.SlotID)
			}
			key.Kind = KindServiceSlotStart
			key.SlotStart = m.SlotStart.UTC()
			return key, nil
		}
		key.Kind = KindServiceDay
		key.Day = StartOfDay(m.CreatedAt, loc)
	default:
		return PartitionKey{}, fmt.Errorf("unknown queue scope %q", svc.QueueScope)
	}
	return key, nil
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns the half-open creation window of a day partition.
func (k PartitionKey) DayBounds() (time.Time, time.Time) {
	return k.Day, k.Day.AddDate(0, 0, 1)
}

// Contains reports whether an appointment belongs to the partition.
// Slotless partitions never include slot appointments, and no partition
// spans services.
func (k PartitionKey) Contains(m Member) bool {
	if m.ServiceID != k.ServiceID {
		return false
	}
	switch k.Kind {
	case KindSlot:
		return m.SlotID != nil && *m.SlotID == k.SlotID
	case KindResourceDay:
		return m.SlotID == nil && m.ResourceID != nil && *m.ResourceID == k.ResourceID && k.inDay(m.CreatedAt)
	case KindServiceSlotStart:
		return m.SlotID != nil && m.SlotStart != nil && m.SlotStart.Equal(k.SlotStart)
	case KindServiceDay:
		return m.SlotID == nil && k.inDay(m.CreatedAt)
	case KindResourceHistory:
		return m.ResourceID != nil && *m.ResourceID == k.ResourceID
	case KindServiceHistory:
		return true
	}
	return false
}

func (k PartitionKey) inDay(t time.Time) bool {
	from, to := k.DayBounds()
	return !t.Before(from) && t.Before(to)
}

// SampleKey is the population DYNAMIC wait estimates learn from. Slot
// partitions rarely accumulate completions, so they fall back to the history
// of the resource (PER_RESOURCE) or of the service (CENTRAL).
func (k PartitionKey) SampleKey(resourceID *uuid.UUID) PartitionKey {
	switch k.Kind {
	case KindSlot:
		if resourceID != nil {
			return PartitionKey{Kind: KindResourceHistory, ServiceID: k.ServiceID, ResourceID: *resourceID}
		}
		return PartitionKey{Kind: KindServiceHistory, ServiceID: k.ServiceID}
	case KindServiceSlotStart:
		return PartitionKey{Kind: KindServiceHistory, ServiceID: k.ServiceID}
	}
	return k
}

// String is the stable name of the partition. It is used in events and as
// the advisory lock key.
func (k PartitionKey) String() string {
	switch k.Kind {
	case KindSlot:
		return fmt.Sprintf("service:%s:slot:%s", k.ServiceID, k.SlotID)
	case KindResourceDay:
		return fmt.Sprintf("service:%s:resource:%s:day:%s", k.ServiceID, k.ResourceID, k.Day.Format("2006-01-02"))
	case KindServiceSlotStart:
		return fmt.Sprintf("service:%s:start:%s", k.ServiceID, k.SlotStart.UTC().Format(time.RFC3339))
	case KindServiceDay:
		return fmt.Sprintf("service:%s:day:%s", k.ServiceID, k.Day.Format("2006-01-02"))
	case KindResourceHistory:
		return fmt.Sprintf("service:%s:resource:%s", k.ServiceID, k.ResourceID)
	case KindServiceHistory:
		return "service:" + k.ServiceID.String()
	}
	return "unknown"
}

// IsQueue reports whether the key names a queue rather than a sample population.
func (k PartitionKey) IsQueue() bool {
	return k.Kind >= KindSlot && k.Kind <= KindServiceDay
}
