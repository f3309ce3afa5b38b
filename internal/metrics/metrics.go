// Package metrics records connector activity as Prometheus series.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "erplink"

// Outcomes of one RPC call.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder owns the connector series of one registry.
type Recorder struct {
	registry     *prometheus.Registry
	calls        *prometheus.CounterVec
	entities     *prometheus.CounterVec
	softFailures *prometheus.CounterVec
	links        *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewRecorder registers the connector series, plus the Go and process collectors, on a fresh
// registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "calls_total",
				Help:      "Total number of RPC calls by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		entities: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "entities_total",
				Help:      "Total number of entities pulled, pushed or deleted by kind",
			},
			[]string{"kind", "operation"},
		),
		softFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "soft_failures_total",
				Help:      "Total number of pushes skipped because a referenced entity was unknown",
			},
			[]string{"kind", "reference"},
		),
		links: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "linker",
				Name:      "acks_total",
				Help:      "Total number of acknowledged identities by outcome",
			},
			[]string{"outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "call_duration_seconds",
				Help:      "Duration of RPC calls in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
	}
}

// ObserveCall records one RPC call.
func (r *Recorder) ObserveCall(method, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.calls.WithLabelValues(method, outcome).Inc()
	r.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// AddEntities counts entities handled by one kind and operation.
func (r *Recorder) AddEntities(kind, operation string, count int) {
	if r == nil || count <= 0 {
		return
	}
	r.entities.WithLabelValues(kind, operation).Add(float64(count))
}

// AddSoftFailure counts one push skipped because reference could not be resolved.
func (r *Recorder) AddSoftFailure(kind, reference string) {
	if r == nil {
		return
	}
	r.softFailures.WithLabelValues(kind, reference).Inc()
}

// AddAcks counts acknowledged identities.
func (r *Recorder) AddAcks(linked, failed int) {
	if r == nil {
		return
	}
	if linked > 0 {
		r.links.WithLabelValues(OutcomeSuccess).Add(float64(linked))
	}
	if failed > 0 {
		r.links.WithLabelValues(OutcomeError).Add(float64(failed))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
