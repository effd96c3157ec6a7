package tunnel

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes of a tunnel request as recorded in sentry_tunnel_requests_total.
const (
	outcomeForwarded     = "forwarded"
	outcomeGate          = "rejected_gate"
	outcomeReadFailed    = "read_failed"
	outcomeEnvelope      = "rejected_envelope"
	outcomePolicy        = "rejected_policy"
	outcomeThrottled     = "throttled"
	outcomeForwardFailed = "forward_failed"
)

// Metrics holds the Prometheus collectors of one server. A nil *Metrics
// records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_tunnel_requests_total",
				Help: "Total number of tunnel requests by outcome",
			},
			[]string{"outcome"},
		),

		forwardDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentry_tunnel_forward_duration_seconds",
				Help:    "Duration of forwarding an envelope to sentry in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),

		registry: registry,
	}

	registry.MustRegister(m.requestsTotal, m.forwardDuration)

	return m
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) recordRequest(err error) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcomeOf(err)).Inc()
}

func (m *Metrics) observeForward(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.forwardDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeForwarded
	case errors.Is(err, ErrForwardFailed):
		return outcomeForwardFailed
	case errors.Is(err, ErrTooManyRequests):
		return outcomeThrottled
	case errors.Is(err, ErrProjectNotAllowed), errors.Is(err, ErrHostNotAllowed):
		return outcomePolicy
	case errors.Is(err, ErrMissingContentLength), errors.Is(err, ErrContentTooLarge), errors.Is(err, ErrUnparseableContentLength):
		return outcomeGate
	case errors.Is(err, ErrReadBody):
		return outcomeReadFailed
	default:
		return outcomeEnvelope
	}
}
