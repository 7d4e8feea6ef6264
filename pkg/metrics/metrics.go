package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Advancement outcomes
const (
	AdvancePromoted = "promoted"
	AdvanceNoop     = "noop"
	AdvanceSkipped  = "skipped"
	AdvanceFailed   = "failed"
)

// Metrics holds all application metrics
type Metrics struct {
	// Queue engine
	Admissions          *prometheus.CounterVec
	AdmissionLatency    prometheus.Histogram
	CapacityRejections  prometheus.Counter
	Cancellations       *prometheus.CounterVec
	StatusChanges       *prometheus.CounterVec
	Advancements        *prometheus.CounterVec
	BroadcastsDelivered prometheus.Counter
	BroadcastsDropped   *prometheus.CounterVec
	RealtimeClients     prometheus.Gauge

	// Collaborators
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	RemindersSent       prometheus.Counter

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisLatency    *prometheus.HistogramVec

	// HTTP
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "admissions_total",
			Help:      "Admission attempts by result",
		}, []string{"result"}),
		AdmissionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "admission_duration_seconds",
			Help:      "Time spent in the admission transaction",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		CapacityRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "capacity_rejections_total",
			Help:      "Admissions rejected because the slot was full",
		}),
		Cancellations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "cancellations_total",
			Help:      "Cancelled appointments by actor",
		}, []string{"cancelled_by"}),
		StatusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "status_changes_total",
			Help:      "Appointment status changes by target status",
		}, []string{"status"}),
		Advancements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "advancements_total",
			Help:      "Advancement attempts by outcome",
		}, []string{"outcome"}),
		BroadcastsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "messages_delivered_total",
			Help:      "Queue updates handed to websocket clients",
		}),
		BroadcastsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "messages_dropped_total",
			Help:      "Queue updates dropped because a buffer was full",
		}, []string{"stage"}),
		RealtimeClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "sent_total",
			Help:      "Notifications delivered by channel",
		}, []string{"channel"}),
		NotificationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "failed_total",
			Help:      "Notification dispatches that failed by kind",
		}, []string{"kind"}),
		RemindersSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "reminders_sent_total",
			Help:      "Appointment reminders sent",
		}),
		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),
		RedisLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"operation"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
		}, []string{"method", "path", "status"}),
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

// NewForTest registers metrics on a private registry.
func NewForTest() *Metrics {
	return NewMetrics("test", prometheus.NewRegistry())
}
