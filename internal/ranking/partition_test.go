package ranking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/queue-api/internal/model"
)

func TestNewPartitionKey(t *testing.T) {
	serviceID := uuid.New()
	resourceID := uuid.New()
	slotID := uuid.New()
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	created := time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC)
	jakarta := time.FixedZone("WIB", 7*3600)

	perResource := &model.Service{Base: model.Base{ID: serviceID}, QueueScope: model.QueueScopePerResource}
	central := &model.Service{Base: model.Base{ID: serviceID}, QueueScope: model.QueueScopeCentral}

	cases := []struct {
		name string
		svc  *model.Service
		m    Member
		kind Kind
		str  string
	}{
		{
			name: "per resource with slot",
			svc:  perResource,
			m:    Member{ServiceID: serviceID, ResourceID: &resourceID, SlotID: &slotID, SlotStart: &start, CreatedAt: created},
			kind: KindSlot,
			str:  "service:" + serviceID.String() + ":slot:" + slotID.String(),
		},
		{
			name: "per resource walk in",
			svc:  perResource,
			m:    Member{ServiceID: serviceID, ResourceID: &resourceID, CreatedAt: created},
			kind: KindResourceDay,
			str:  "service:" + serviceID.String() + ":resource:" + resourceID.String() + ":day:2024-03-05",
		},
		{
			name: "central with slot",
			svc:  central,
			m:    Member{ServiceID: serviceID, ResourceID: &resourceID, SlotID: &slotID, SlotStart: &start, CreatedAt: created},
			kind: KindServiceSlotStart,
			str:  "service:" + serviceID.String() + ":start:2024-03-04T10:00:00Z",
		},
		{
			name: "central walk in",
			svc:  central,
			m:    Member{ServiceID: serviceID, CreatedAt: created},
			kind: KindServiceDay,
			str:  "service:" + serviceID.String() + ":day:2024-03-05",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			key, err := NewPartitionKey(tt.svc, tt.m, jakarta)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, key.Kind)
			assert.Equal(t, tt.str, key.String())
			assert.True(t, key.Contains(tt.m))
			assert.True(t, key.IsQueue())
		})
	}
}

func TestNewPartitionKeyRequiresResource(t *testing.T) {
	svc := &model.Service{Base: model.Base{ID: uuid.New()}, QueueScope: model.QueueScopePerResource}
	_, err := NewPartitionKey(svc, Member{ServiceID: svc.ID, CreatedAt: time.Now()}, time.UTC)
	assert.Error(t, err)
}

func TestPartitionsDoNotOverlap(t *testing.T) {
	serviceID := uuid.New()
	resourceID := uuid.New()
	slotID := uuid.New()
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	day := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	svc := &model.Service{Base: model.Base{ID: serviceID}, QueueScope: model.QueueScopeCentral}
	walkIn, err := NewPartitionKey(svc, Member{ServiceID: serviceID, CreatedAt: day}, time.UTC)
	require.NoError(t, err)

	slotted := Member{ServiceID: serviceID, ResourceID: &resourceID, SlotID: &slotID, SlotStart: &start, CreatedAt: day}
	assert.False(t, walkIn.Contains(slotted), "slot appointments stay out of the walk-in queue")
	assert.False(t, walkIn.Contains(Member{ServiceID: serviceID, CreatedAt: day.AddDate(0, 0, 1)}))
	assert.False(t, walkIn.Contains(Member{ServiceID: uuid.New(), CreatedAt: day}))
}

func TestSampleKeyWidensSlotPartitions(t *testing.T) {
	serviceID := uuid.New()
	resourceID := uuid.New()

	slot := PartitionKey{Kind: KindSlot, ServiceID: serviceID, SlotID: uuid.New()}
	sk := slot.SampleKey(&resourceID)
	assert.Equal(t, KindResourceHistory, sk.Kind)
	assert.False(t, sk.IsQueue())
	assert.True(t, sk.Contains(Member{ServiceID: serviceID, ResourceID: &resourceID}))

	central := PartitionKey{Kind: KindServiceSlotStart, ServiceID: serviceID}
	assert.Equal(t, KindServiceHistory, central.SampleKey(nil).Kind)

	day := PartitionKey{Kind: KindServiceDay, ServiceID: serviceID}
	assert.Equal(t, day, day.SampleKey(nil))
}

func TestSlotPartitionIsScopedByService(t *testing.T) {
	resourceID := uuid.New()
	slotID := uuid.New()
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	a := &model.Service{Base: model.Base{ID: uuid.New()}, QueueScope: model.QueueScopePerResource}
	b := &model.Service{Base: model.Base{ID: uuid.New()}, QueueScope: model.QueueScopePerResource}

	ma := Member{ServiceID: a.ID, ResourceID: &resourceID, SlotID: &slotID, SlotStart: &start, CreatedAt: start}
	mb := Member{ServiceID: b.ID, ResourceID: &resourceID, SlotID: &slotID, SlotStart: &start, CreatedAt: start}

	ka, err := NewPartitionKey(a, ma, time.UTC)
	require.NoError(t, err)
	kb, err := NewPartitionKey(b, mb, time.UTC)
	require.NoError(t, err)

	assert.NotEqual(t, ka.String(), kb.String())
	assert.True(t, ka.Contains(ma))
	assert.False(t, ka.Contains(mb))
	assert.False(t, kb.Contains(ma))
}
