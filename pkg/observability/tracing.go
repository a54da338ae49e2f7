package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/shredinjohn/micro-mcp"

// Tracer wraps span creation around request dispatch. The exporter choice
// belongs to the embedding application; the engine only takes a
// TracerProvider.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from the given provider. A nil provider
// falls back to the global one, which is a no-op unless the application
// installed an SDK.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartRequest opens a span for one dispatched request.
func (t *Tracer) StartRequest(ctx context.Context, method string, id interface{}) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
			attribute.String("rpc.id", fmt.Sprintf("%v", id)),
		),
	)
}

// EndRequest closes the span, recording the dispatch outcome.
func (t *Tracer) EndRequest(span trace.Span, err error) {
	if t == nil || span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
