// The tracing package wraps OpenTelemetry for compld: device calls
// run in spans exported to a jaeger agent, or in noop spans when no
// agent is configured.
package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.14.0"
	"go.opentelemetry.io/otel/trace"

	db "complgate/debug"
)

// Fraction of top-level device calls traced.
const SAMPLE_RATIO = 0.01

// syncExporter serializes calls into its exporter; the jaeger
// exporter isn't safe for concurrent use
// (open-telemetry/opentelemetry-go#3036), and gate calls end spans
// from many goroutines at once.
type syncExporter struct {
	sync.Mutex
	sdktrace.SpanExporter
	nspan int
}

func (e *syncExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.Lock()
	defer e.Unlock()
	e.nspan += len(spans)
	return e.SpanExporter.ExportSpans(ctx, spans)
}

func (e *syncExporter) Shutdown(ctx context.Context) error {
	e.Lock()
	defer e.Unlock()
	db.DPrintf(db.TRACING, "exporter shutdown after %d spans", e.nspan)
	return e.SpanExporter.Shutdown(ctx)
}

type Tracer struct {
	t  trace.Tracer
	tp *sdktrace.TracerProvider // nil for a noop tracer
}

func NewNoopTracer() *Tracer {
	return &Tracer{t: trace.NewNoopTracerProvider().Tracer("noop")}
}

// Init returns a tracer for svcname exporting to the jaeger agent on
// host, or a noop tracer if host is empty.
func Init(svcname string, host string) (*Tracer, error) {
	if host == "" {
		return NewNoopTracer(), nil
	}
	je, err := jaeger.New(jaeger.WithAgentEndpoint(jaeger.WithAgentHost(host)))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.TODO(), resource.WithAttributes(semconv.ServiceNameKey.String(svcname)))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(SAMPLE_RATIO))),
		sdktrace.WithSyncer(&syncExporter{SpanExporter: je}),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	db.DPrintf(db.TRACING, "tracing %v to %v", svcname, host)
	return &Tracer{t: tp.Tracer(svcname), tp: tp}, nil
}

// StartDevSpan starts a span for device operation op on dev.
func (t *Tracer) StartDevSpan(ctx context.Context, op, dev string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.t.Start(ctx, dev+"."+op)
	span.SetAttributes(attribute.String("dev", dev))
	span.SetAttributes(attrs...)
	return ctx, span
}

func (t *Tracer) Shutdown() {
	if t.tp == nil {
		return
	}
	if err := t.tp.Shutdown(context.TODO()); err != nil {
		db.DPrintf(db.ERROR, "Error shutdown tracer provider %v", err)
	}
}
