package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Operation tracks provider housekeeping outside the invocation path, such
// as opening a backing store for a new link.
type Operation struct {
	ctx     context.Context
	span    trace.Span
	metrics *Metrics
	name    string
	start   time.Time
}

// StartOperation begins tracking name. m may be nil.
func StartOperation(ctx context.Context, m *Metrics, name string, attrs ...attribute.KeyValue) (*Operation, context.Context) {
	ctx, span := StartSpan(ctx, name, attrs...)
	return &Operation{ctx: ctx, span: span, metrics: m, name: name, start: time.Now()}, ctx
}

// End records the outcome. Failures are logged at warn level.
func (o *Operation) End(err error) {
	elapsed := time.Since(o.start)
	if err != nil {
		slog.WarnContext(o.ctx, "operation failed", "operation", o.name, "error", err, "duration", elapsed)
		EndSpan(o.span, "operation", err)
	} else {
		EndSpan(o.span, "", nil)
	}
	if o.metrics == nil {
		return
	}
	status := statusOf(err)
	o.metrics.OperationDuration.WithLabelValues(o.name, status).Observe(elapsed.Seconds())
	o.metrics.OperationTotal.WithLabelValues(o.name, status).Inc()
	if err != nil {
		o.metrics.CountError(o.name, "operation")
	}
}
