package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderPropagatesTraceContext(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, Config{ServiceName: "oab-sync-test", SampleRatio: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	recorder := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(recorder)

	spanCtx, span := otel.Tracer("test").Start(ctx, "capture.job")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(spanCtx, carrier)
	span.End()

	assert.NotEmpty(t, carrier.Get("traceparent"))
	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "capture.job", recorder.Ended()[0].Name())
}
