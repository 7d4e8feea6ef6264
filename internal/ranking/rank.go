package ranking

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
)

// Entry is the slice of an appointment the ranking pass looks at. Seq is the
// insertion order and breaks ties between equal creation times.
type Entry struct {
	ID        uuid.UUID               `db:"id"`
	Seq       int64                   `db:"seq"`
	Status    model.AppointmentStatus `db:"status"`
	CreatedAt time.Time               `db:"created_at"`
}

type Ranked struct {
	Entry
	Rank int
}

// Ranking is the ordered active set of one partition at one instant.
type Ranking struct {
	entries []Ranked
	index   map[uuid.UUID]int
}

// Rank keeps the active entries, orders them by creation time then insertion
// order, and numbers them 1..N without gaps.
func Rank(entries []Entry) *Ranking {
	active := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status.Active() {
			active = append(active, e)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].Seq < active[j].Seq
	})

	r := &Ranking{
		entries: make([]Ranked, len(active)),
		index:   make(map[uuid.UUID]int, len(active)),
	}
	for i, e := range active {
		r.entries[i] = Ranked{Entry: e, Rank: i + 1}
		r.index[e.ID] = i
	}
	return r
}

func (r *Ranking) Len() int {
	return len(r.entries)
}

func (r *Ranking) Entries() []Ranked {
	return r.entries
}

// RankOf returns the 1-based rank of id, or false when id is not active.
func (r *Ranking) RankOf(id uuid.UUID) (int, bool) {
	i, ok := r.index[id]
	if !ok {
		return 0, false
	}
	return r.entries[i].Rank, true
}

// CurrentServingRank is the rank of the serving appointment or, when nobody
// is served, of the first one still waiting. Zero means neither exists.
func (r *Ranking) CurrentServingRank() int {
	head := 0
	for _, e := range r.entries {
		if e.Status == model.AppointmentStatusServing {
			return e.Rank
		}
		if head == 0 && e.Status.Waiting() {
			head = e.Rank
		}
	}
	return head
}

// PeopleAhead counts the positions between the head of the queue and rank.
func (r *Ranking) PeopleAhead(rank int) int {
	current := r.CurrentServingRank()
	if current == 0 {
		current = rank
	}
	if ahead := rank - current; ahead > 0 {
		return ahead
	}
	return 0
}
