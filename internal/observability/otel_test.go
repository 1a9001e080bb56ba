package observability

import (
	"context"
	"testing"

	"coffeemaker/internal/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitOTelWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	shutdown := InitOTel(context.Background(), logger.Nop(), OtelConfig{ServiceName: "coffeemaker-test"})
	require.NotNil(t, shutdown)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
}

func TestSampleRatio(t *testing.T) {
	cases := map[string]float64{"": 1, "0.25": 0.25, "-1": 0, "3": 1, "junk": 1}
	for raw, want := range cases {
		t.Setenv("OTEL_SAMPLER_RATIO", raw)
		assert.Equal(t, want, sampleRatio(), raw)
	}
}
