package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Carried is a span context detached from its context.Context, for work
// handed to another goroutine through a channel.
type Carried propagation.MapCarrier

// Carry captures the propagated fields (traceparent, tracestate, baggage)
// of ctx.
func Carry(ctx context.Context) Carried {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	if len(c) == 0 {
		return nil
	}
	return Carried(c)
}

// Resume returns ctx as a child of the captured span, or ctx unchanged when
// nothing was captured.
func (c Carried) Resume(ctx context.Context) context.Context {
	if len(c) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(c))
}

// TraceParent is the W3C traceparent header value, if any.
func (c Carried) TraceParent() string { return c["traceparent"] }
