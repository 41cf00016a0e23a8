package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for the processing duration histogram.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeDead      = "dead"
	OutcomeIgnored   = "ignored"
	OutcomeDropped   = "dropped"
)

// Pipeline holds the webhook pipeline's counters and the
// dequeue-to-outcome duration histogram. These are incremented at the
// transition points themselves, never derived by scanning the ledger.
type Pipeline struct {
	Received     prometheus.Counter
	Completed    prometheus.Counter
	Retried      prometheus.Counter
	DeadLettered prometheus.Counter
	Duration     *prometheus.HistogramVec
}

func NewPipeline(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		Received: factory.NewCounter(prometheus.CounterOpts{
			Name: "tenantflow_webhook_events_received_total",
			Help: "Distinct webhook events accepted at intake.",
		}),
		Completed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tenantflow_webhook_events_completed_total",
			Help: "Webhook events processed to completion.",
		}),
		Retried: factory.NewCounter(prometheus.CounterOpts{
			Name: "tenantflow_webhook_events_retried_total",
			Help: "Webhook processing attempts requeued with backoff.",
		}),
		DeadLettered: factory.NewCounter(prometheus.CounterOpts{
			Name: "tenantflow_webhook_events_dead_lettered_total",
			Help: "Webhook events moved to the dead-letter table.",
		}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantflow_webhook_processing_seconds",
			Help:    "Time from dequeue to attempt outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

// ObserveDuration records one attempt's dequeue-to-outcome duration.
func (p *Pipeline) ObserveDuration(outcome string, since time.Time) {
	p.Duration.WithLabelValues(outcome).Observe(time.Since(since).Seconds())
}
