package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	RevisionsCreated prometheus.Counter
	Rollbacks        prometheus.Counter
	Transitions      *prometheus.CounterVec
	DiffDuration     prometheus.Histogram
}

// NewMetrics registers the engine metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RevisionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "progrev",
			Name:      "revisions_created_total",
			Help:      "Number of revisions created.",
		}),
		Rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "progrev",
			Name:      "rollbacks_total",
			Help:      "Number of successful revision rollbacks.",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "progrev",
			Name:      "workflow_transitions_total",
			Help:      "Number of requested workflow transitions by result.",
		}, []string{"result"}),
		DiffDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "progrev",
			Name:      "diff_duration_seconds",
			Help:      "Time spent computing revision diffs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
