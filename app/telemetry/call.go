package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// EndBlockFunction names end-of-block runs in spans and metrics.
const EndBlockFunction = "end_block"

// Call tracks one block: a delivered call or an end-of-block run.
type Call struct {
	p      *Provider
	span   trace.Span
	fn     string
	height int64
	start  time.Time
}

// StartCall opens the span for fn executing at height. caller is empty for
// end-of-block runs.
func (p *Provider) StartCall(ctx context.Context, fn, caller string, height int64) (context.Context, *Call) {
	attrs := []attribute.KeyValue{
		attribute.String("market.function", fn),
		attribute.Int64("market.height", height),
	}
	if caller != "" {
		attrs = append(attrs, attribute.String("market.caller", caller))
	}
	ctx, span := p.tracer.Start(ctx, "market."+fn,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Call{p: p, span: span, fn: fn, height: height, start: time.Now()}
}

// End records the outcome of the call and closes its span. The block counts
// as committed either way; a rejected call commits an empty block.
func (c *Call) End(ctx context.Context, err error) {
	fnAttr := metric.WithAttributes(attribute.String("function", c.fn))
	c.p.blocks.Add(ctx, 1)
	c.p.callLatency.Record(ctx, time.Since(c.start).Seconds(), fnAttr,
		metric.WithAttributes(attribute.Bool("ok", err == nil)))
	if err != nil {
		c.p.rejections.Add(ctx, 1, fnAttr)
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	}
	c.span.End()
}
