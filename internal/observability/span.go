package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gezibash/wasmbus"

// Attribute keys recorded on invocation spans.
const (
	AttrInvocationID = attribute.Key("wasmbus.invocation_id")
	AttrOperation    = attribute.Key("wasmbus.operation")
	AttrActor        = attribute.Key("wasmbus.actor")
	AttrErrorType    = attribute.Key("wasmbus.error_type")
)

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartDispatchSpan starts the server span for one invocation of op on
// behalf of actor.
func StartDispatchSpan(ctx context.Context, invocationID, op, actor string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch "+op,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			AttrInvocationID.String(invocationID),
			AttrOperation.String(op),
			AttrActor.String(actor),
		),
	)
}

// EndSpan ends span, marking it failed when err is set. errType classifies
// the failure and may be empty.
func EndSpan(span trace.Span, errType string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errType != "" {
			span.SetAttributes(AttrErrorType.String(errType))
		}
	}
	span.End()
}
