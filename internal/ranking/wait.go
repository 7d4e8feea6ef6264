package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/jwalitptl/queue-api/internal/model"
)

const DefaultServiceMinutes = 15

// Sample is one completed appointment used to learn service duration.
type Sample struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s Sample) Duration() time.Duration {
	return s.UpdatedAt.Sub(s.CreatedAt)
}

// ServiceMinutes is the configured duration of one service, or fallback when
// the service has none.
func ServiceMinutes(svc *model.Service, fallback int) int {
	if svc.EstimatedServiceTime > 0 {
		return svc.EstimatedServiceTime
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultServiceMinutes
}

// MostRecent keeps the n samples that completed last.
func MostRecent(samples []Sample, n int) []Sample {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// MeanMinutes averages the sample durations, returning false without samples.
func MeanMinutes(samples []Sample) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, s := range samples {
		total += s.Duration()
	}
	return total.Minutes() / float64(len(samples)), true
}

// EstimateWait returns the expected wait in minutes for someone with
// peopleAhead appointments before them. STATIC services use the configured
// duration; DYNAMIC services learn it from samples.
func EstimateWait(svc *model.Service, peopleAhead int, samples []Sample, fallback int) int {
	if peopleAhead <= 0 {
		return 0
	}
	perPerson := float64(ServiceMinutes(svc, fallback))
	if svc.QueueType == model.QueueTypeDynamic {
		if mean, ok := MeanMinutes(samples); ok {
			perPerson = mean
		}
		return int(math.Round(float64(peopleAhead) * perPerson))
	}
	return peopleAhead * int(perPerson)
}
