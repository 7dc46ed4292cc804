package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/amoylab/tokenbridge/internal/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// stubExporters replaces the network constructors for the duration of a test
func stubExporters(t *testing.T, httpErr, grpcErr error) {
	t.Helper()
	origRes, origHTTP, origGRPC := newResource, newOTLPTraceHTTP, newOTLPTraceGRPC
	prev := otel.GetTracerProvider()
	t.Cleanup(func() {
		newResource, newOTLPTraceHTTP, newOTLPTraceGRPC = origRes, origHTTP, origGRPC
		otel.SetTracerProvider(prev)
	})

	newResource = func(ctx context.Context, opts ...resource.Option) (*resource.Resource, error) {
		return resource.Empty(), nil
	}
	newOTLPTraceHTTP = func(ctx context.Context, opts ...otlptracehttp.Option) (sdktrace.SpanExporter, error) {
		if httpErr != nil {
			return nil, httpErr
		}
		return tracetest.NewInMemoryExporter(), nil
	}
	newOTLPTraceGRPC = func(ctx context.Context, opts ...otlptracegrpc.Option) (sdktrace.SpanExporter, error) {
		if grpcErr != nil {
			return nil, grpcErr
		}
		return tracetest.NewInMemoryExporter(), nil
	}
}

func TestInitTracing_Protocols(t *testing.T) {
	for _, protocol := range []string{"http", "grpc", ""} {
		t.Run("protocol "+protocol, func(t *testing.T) {
			stubExporters(t, nil, nil)
			cfg := &config.TracingConfig{
				Enabled:     true,
				ServiceName: "tokenbridge-test",
				Protocol:    protocol,
				Insecure:    true,
				SamplerRate: 2.5,
				Headers:     map[string]string{"x-test": "1"},
			}
			shutdown, err := InitTracing(context.Background(), cfg, zap.NewNop())
			require.NoError(t, err)
			require.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestInitTracing_Errors(t *testing.T) {
	t.Run("resource", func(t *testing.T) {
		stubExporters(t, nil, nil)
		newResource = func(ctx context.Context, opts ...resource.Option) (*resource.Resource, error) {
			return nil, errors.New("resource creation failed")
		}
		shutdown, err := InitTracing(context.Background(), &config.TracingConfig{}, zap.NewNop())
		assert.Nil(t, shutdown)
		assert.ErrorContains(t, err, "create resource")
	})

	t.Run("http exporter", func(t *testing.T) {
		stubExporters(t, errors.New("http exporter failed"), nil)
		_, err := InitTracing(context.Background(), &config.TracingConfig{Protocol: "http"}, zap.NewNop())
		assert.ErrorContains(t, err, "create exporter")
	})

	t.Run("grpc exporter", func(t *testing.T) {
		stubExporters(t, nil, errors.New("grpc exporter failed"))
		_, err := InitTracing(context.Background(), &config.TracingConfig{Protocol: "grpc"}, zap.NewNop())
		assert.ErrorContains(t, err, "create exporter")
	})
}

func TestBuilder_WithInMemoryProvider(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sr),
		sdktrace.WithResource(resource.Empty()),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	scope := Tracer("trace-test").Start(context.Background(), "op")
	scope.WithAttrs(attribute.String("k", "v")).WithAttrs(attribute.Bool("b", true))
	scope.Fail(errors.New("boom"), "failed")
	scope.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "op", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("k", "v"))
	assert.Len(t, spans[0].Events(), 1)
}

func TestSpanScope_NilSafety(t *testing.T) {
	var nilScope *SpanScope
	assert.Nil(t, nilScope.WithAttrs(attribute.String("key", "value")))
	nilScope.Fail(errors.New("x"), "x")
	nilScope.End()

	scope := &SpanScope{Ctx: context.Background()}
	assert.Equal(t, scope, scope.WithAttrs(attribute.String("key", "value")))
	scope.End()
}
