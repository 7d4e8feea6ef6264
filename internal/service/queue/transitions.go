package queue

import "github.com/jwalitptl/queue-api/internal/model"

// transitionMap lists the states each status may move to. Statuses without
// an entry are terminal.
var transitionMap = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending: {
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	},
	model.AppointmentStatusConfirmed: {
		model.AppointmentStatusServing,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	},
	model.AppointmentStatusServing: {
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	},
}

func CanTransition(from, to model.AppointmentStatus) bool {
	for _, status := range transitionMap[from] {
		if status == to {
			return true
		}
	}
	return false
}

func IsTerminal(status model.AppointmentStatus) bool {
	_, ok := transitionMap[status]
	return !ok
}

// TriggersAdvance reports whether entering status can leave the partition
// without a serving appointment.
func TriggersAdvance(status model.AppointmentStatus) bool {
	switch status {
	case model.AppointmentStatusCompleted, model.AppointmentStatusCancelled, model.AppointmentStatusNoShow:
		return true
	}
	return false
}
