// Package metrics holds the prometheus instruments for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all pipeline metrics. One Registry is created per
// process and shared by the components running in it.
type Registry struct {
	// Ingestion
	ActiveConnections prometheus.Gauge
	FramesReceived    prometheus.Counter
	FramesDropped     *prometheus.CounterVec
	EventsPublished   prometheus.Counter
	PublishFailures   prometheus.Counter

	// Persistence
	EventsPersisted     prometheus.Counter
	PersistenceFailures prometheus.Counter
	MessagesDropped     prometheus.Counter

	// Risk engine
	TrainingsTotal   *prometheus.CounterVec
	PredictionsTotal *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
}

// NewRegistry creates and registers all instruments on reg. Pass
// prometheus.DefaultRegisterer in binaries; tests use a private
// registry to avoid duplicate registration.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "behaviorguard_active_connections",
			Help: "Currently open ingestion streams.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "behaviorguard_frames_received_total",
			Help: "Text frames received across all streams.",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "behaviorguard_frames_dropped_total",
			Help: "Frames dropped before publish, by reason.",
		}, []string{"reason"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "behaviorguard_events_published_total",
			Help: "Enriched events published to the broker.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "behaviorguard_publish_failures_total",
			Help: "Broker publish failures.",
		}),
		EventsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "behaviorguard_events_persisted_total",
			Help: "Events committed to the relational store.",
		}),
		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "behaviorguard_persistence_failures_total",
			Help: "Rolled-back event writes.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "behaviorguard_consumer_messages_dropped_total",
			Help: "Broker messages dropped as unparseable.",
		}),
		TrainingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "behaviorguard_trainings_total",
			Help: "Model training requests, by outcome.",
		}, []string{"outcome"}),
		PredictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "behaviorguard_predictions_total",
			Help: "Prediction requests, by outcome.",
		}, []string{"outcome"}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "behaviorguard_training_duration_seconds",
			Help:    "Wall time of model training runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		r.ActiveConnections,
		r.FramesReceived,
		r.FramesDropped,
		r.EventsPublished,
		r.PublishFailures,
		r.EventsPersisted,
		r.PersistenceFailures,
		r.MessagesDropped,
		r.TrainingsTotal,
		r.PredictionsTotal,
		r.TrainingDuration,
	)

	return r
}
