package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "pharmastats"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, otel.GetTextMapPropagator())
}

func TestInitTracingWithEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		ServiceName:    "pharmastats",
		ServiceVersion: "test",
		Endpoint:       "http://127.0.0.1:1/api/traces",
		SampleRatio:    0.5,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
