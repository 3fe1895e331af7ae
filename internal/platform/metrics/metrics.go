// Package metrics provides operational metrics collection.
//
// Metrics capture non-mutating observations of the budget service: command
// outcomes and latency, ledger appends, stream creation retries, and cache
// refreshes. They are exposed in Prometheus format and are separate from the
// event journal, which stays the only source of domain state.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trubudget"

// Outcome labels a finished command.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder owns a private registry and the service collectors. A nil Recorder
// records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	commands       *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
	appended       *prometheus.CounterVec
	streamRetries  prometheus.Counter
	cacheRefreshes prometheus.Counter
	cacheEvents    prometheus.Counter
}

// New builds a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled, by command name and outcome.",
		}, []string{"command", "outcome"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command handling latency, by command name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		appended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_appended_total",
			Help:      "Events appended to the ledger, by event type.",
		}, []string{"type"}),
		streamRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_stream_create_retries_total",
			Help:      "Appends that created a missing stream and retried.",
		}),
		cacheRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Cache refresh passes that reached the ledger.",
		}),
		cacheEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_applied_total",
			Help:      "Events folded into the cache during refresh.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.commands,
		r.commandLatency,
		r.appended,
		r.streamRetries,
		r.cacheRefreshes,
		r.cacheEvents,
	)
	return r
}

// ObserveCommand records one finished command.
func (r *Recorder) ObserveCommand(command, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(command, outcome).Inc()
	r.commandLatency.WithLabelValues(command).Observe(elapsed.Seconds())
}

// EventAppended records one event persisted to the ledger.
func (r *Recorder) EventAppended(eventType string) {
	if r == nil {
		return
	}
	r.appended.WithLabelValues(eventType).Inc()
}

// StreamCreateRetried records an append that had to create its stream first.
func (r *Recorder) StreamCreateRetried() {
	if r == nil {
		return
	}
	r.streamRetries.Inc()
}

// CacheRefreshed records one refresh pass and the number of events it folded.
func (r *Recorder) CacheRefreshed(applied int) {
	if r == nil {
		return
	}
	r.cacheRefreshes.Inc()
	if applied > 0 {
		r.cacheEvents.Add(float64(applied))
	}
}

// Registry exposes the underlying registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
