package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the event module.
// Tracks ingestion volume, idempotent replays, race losses, and query latency.
type Metrics struct {
	EventsIngested        prometheus.Counter
	IdempotentReplays     prometheus.Counter
	IdempotencyConflicts  prometheus.Counter
	IngestDuration        prometheus.Histogram
	TimelineQueryDuration prometheus.Histogram
}

// New creates a Metrics instance with all event module metrics registered.
func New() *Metrics {
	return &Metrics{
		EventsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_events_ingested_total",
			Help: "Total number of events durably stored",
		}),
		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_idempotent_replays_total",
			Help: "Total number of submissions answered from an existing idempotency mapping",
		}),
		IdempotencyConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_idempotency_conflicts_total",
			Help: "Total number of unique-constraint race losses during ingestion",
		}),
		IngestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_ingest_duration_seconds",
			Help:    "Duration of Ingest operations (write critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		TimelineQueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_timeline_query_duration_seconds",
			Help:    "Duration of timeline query operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveIngest records the duration of an Ingest operation.
// Call with time.Now() captured at the start of the operation.
func (m *Metrics) ObserveIngest(start time.Time) {
	m.IngestDuration.Observe(time.Since(start).Seconds())
}

// ObserveTimelineQuery records the duration of a timeline query.
func (m *Metrics) ObserveTimelineQuery(start time.Time) {
	m.TimelineQueryDuration.Observe(time.Since(start).Seconds())
}
