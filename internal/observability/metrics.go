package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus registry and the lattice meters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry           *prometheus.Registry
	OperationDuration  *prometheus.HistogramVec
	OperationTotal     *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	DispatchTotal      *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	LinksActive        prometheus.Gauge
	BytesProcessed     *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics creates a custom Prometheus registry with the wasmbus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wasmbus_operation_duration_seconds",
		Help:    "Duration of internal operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmbus_operation_total",
		Help: "Total number of internal operations.",
	}, []string{"operation", "status"})

	dispatchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wasmbus_dispatch_duration_seconds",
		Help:    "Duration of capability operation dispatches in seconds.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"operation", "status"})

	dispatchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmbus_dispatch_total",
		Help: "Total number of capability operation dispatches.",
	}, []string{"operation", "status"})

	validationFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmbus_validation_failures_total",
		Help: "Invocations rejected by anti-forgery validation.",
	}, []string{"reason"})

	linksActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wasmbus_links_active",
		Help: "Number of actors currently linked to this provider.",
	})

	bytesProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmbus_bytes_processed_total",
		Help: "Total invocation payload bytes processed.",
	}, []string{"direction"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wasmbus_errors_total",
		Help: "Total number of errors.",
	}, []string{"operation", "type"})

	reg.MustRegister(opDuration, opTotal, dispatchDuration, dispatchTotal,
		validationFailures, linksActive, bytesProcessed, errorsTotal)

	return &Metrics{
		Registry:           reg,
		OperationDuration:  opDuration,
		OperationTotal:     opTotal,
		DispatchDuration:   dispatchDuration,
		DispatchTotal:      dispatchTotal,
		ValidationFailures: validationFailures,
		LinksActive:        linksActive,
		BytesProcessed:     bytesProcessed,
		ErrorsTotal:        errorsTotal,
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveDispatch records one dispatch of a capability operation.
func (m *Metrics) ObserveDispatch(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := statusOf(err)
	m.DispatchDuration.WithLabelValues(op, status).Observe(d.Seconds())
	m.DispatchTotal.WithLabelValues(op, status).Inc()
}

// ValidationFailed counts a rejected invocation.
func (m *Metrics) ValidationFailed(reason string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(reason).Inc()
}

// SetLinks reports the current number of linked actors.
func (m *Metrics) SetLinks(n int) {
	if m == nil {
		return
	}
	m.LinksActive.Set(float64(n))
}

// AddBytes counts payload bytes; direction is "in" or "out".
func (m *Metrics) AddBytes(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesProcessed.WithLabelValues(direction).Add(float64(n))
}

// CountError counts an error of kind typ during op.
func (m *Metrics) CountError(op, typ string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(op, typ).Inc()
}
