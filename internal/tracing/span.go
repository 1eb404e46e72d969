package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrJob    = attribute.Key("loadcore.job")
	attrTarget = attribute.Key("loadcore.target")
	attrThread = attribute.Key("loadcore.thread")
	attrJobID  = attribute.Key("loadcore.job_id")
)

// StartOperationSpan starts a client span for one job operation, named
// "<job> <operation>".
func StartOperationSpan(ctx context.Context, tracer trace.Tracer, job, operation, target, thread string) (context.Context, trace.Span) {
	name := job + " " + operation
	if operation == "" {
		name = job + " operation"
	}
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attrJob.String(job))
	if target != "" {
		span.SetAttributes(attrTarget.String(target))
	}
	if thread != "" {
		span.SetAttributes(attrThread.String(thread))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
