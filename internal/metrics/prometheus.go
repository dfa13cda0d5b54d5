package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
)

const namespace = "upstream_selector"

// Exporter mirrors collected events into Prometheus collectors on its own
// registry.
type Exporter struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	selections       *prometheus.CounterVec
	responses        *prometheus.CounterVec
	responseDuration *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
	transitions      *prometheus.CounterVec
	rejected         prometheus.Counter
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Requests routed to an upstream.",
		}, []string{"upstream"}),

		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "selections_total",
			Help:      "Times an upstream won a selection.",
		}, []string{"upstream"}),

		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "responses_total",
			Help:      "Responses by upstream and status code.",
		}, []string{"upstream", "code"}),

		responseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "response_duration_seconds",
			Help:      "Upstream response time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream"}),

		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Breaker state per upstream: 0 closed, 1 open, 2 half-open.",
		}, []string{"upstream"}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Breaker transitions per upstream.",
		}, []string{"upstream", "from", "to"}),

		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_upstream_total",
			Help:      "Requests rejected because no upstream was available.",
		}),
	}

	e.registry.MustRegister(
		e.requests,
		e.selections,
		e.responses,
		e.responseDuration,
		e.breakerState,
		e.transitions,
		e.rejected,
	)

	return e
}

// Registry is the gatherer backing Handler.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) observe(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		e.requests.WithLabelValues(event.Upstream).Inc()

	case EventUpstreamSelected:
		e.selections.WithLabelValues(event.Upstream).Inc()

	case EventResponseCompleted:
		e.responses.WithLabelValues(event.Upstream, strconv.Itoa(event.StatusCode)).Inc()
		e.responseDuration.WithLabelValues(event.Upstream).Observe(event.Duration.Seconds())

	case EventBreakerTransition:
		e.breakerState.WithLabelValues(event.Upstream).Set(stateValue(event.To))
		e.transitions.WithLabelValues(event.Upstream, event.From.String(), event.To.String()).Inc()

	case EventNoUpstream:
		e.rejected.Inc()

	case EventUpstreamAdded:
		e.breakerState.WithLabelValues(event.Upstream).Set(stateValue(circuitbreaker.StateClosed))
	}
}

func stateValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateOpen:
		return 1
	case circuitbreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
