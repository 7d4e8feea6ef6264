package postgres

import (
	"fmt"

	"github.com/jwalitptl/queue-api/internal/ranking"
)

// partitionFilter renders the WHERE clause selecting the appointments of key
// from the table aliased "a". Placeholders start at $first.
func partitionFilter(key ranking.PartitionKey, first int) (string, []interface{}) {
	p := func(i int) string { return fmt.Sprintf("$%d", first+i) }

	switch key.Kind {
	case ranking.KindSlot:
		return fmt.Sprintf("a.service_id = %s AND a.slot_id = %s", p(0), p(1)),
			[]interface{}{key.ServiceID, key.SlotID}
	case ranking.KindResourceDay:
		from, to := key.DayBounds()
		return fmt.Sprintf(
			"a.service_id = %s AND a.resource_id = %s AND a.slot_id IS NULL AND a.created_at >= %s AND a.created_at < %s",
			p(0), p(1), p(2), p(3),
		), []interface{}{key.ServiceID, key.ResourceID, from, to}
	case ranking.KindServiceSlotStart:
		return fmt.Sprintf(
			"a.service_id = %s AND a.slot_id IN (SELECT s.id FROM slots s WHERE s.start_time = %s)",
			p(0), p(1),
		), []interface{}{key.ServiceID, key.SlotStart}
	case ranking.KindServiceDay:
		from, to := key.DayBounds()
		return fmt.Sprintf(
			"a.service_id = %s AND a.slot_id IS NULL AND a.created_at >= %s AND a.created_at < %s",
			p(0), p(1), p(2),
		), []interface{}{key.ServiceID, from, to}
	case ranking.KindResourceHistory:
		return fmt.Sprintf("a.service_id = %s AND a.resource_id = %s", p(0), p(1)),
			[]interface{}{key.ServiceID, key.ResourceID}
	case ranking.KindServiceHistory:
		return "a.service_id = " + p(0), []interface{}{key.ServiceID}
	}
	return "FALSE", nil
}
