package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"
)

func TestSyncExporter(t *testing.T) {
	const (
		NG    = 8
		NSPAN = 50
	)
	mem := tracetest.NewInMemoryExporter()
	se := &syncExporter{SpanExporter: mem}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(se))
	tr := &Tracer{t: tp.Tracer("test"), tp: tp}

	var g errgroup.Group
	for i := 0; i < NG; i++ {
		g.Go(func() error {
			for j := 0; j < NSPAN; j++ {
				_, span := tr.StartDevSpan(context.Background(), "Write", "completion")
				span.End()
			}
			return nil
		})
	}
	assert.Nil(t, g.Wait())
	assert.Equal(t, NG*NSPAN, len(mem.GetSpans()))
	assert.Equal(t, "completion.Write", mem.GetSpans()[0].Name)

	tr.Shutdown()
	se.Lock()
	assert.Equal(t, NG*NSPAN, se.nspan)
	se.Unlock()
}
