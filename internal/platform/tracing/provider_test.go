package tracing

import (
	"context"
	"testing"

	"github.com/ogurasousui/nearest-leader/internal/platform/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestSetup_WithoutExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{SampleRatio: 1})
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Fatalf("expected a recording span from the sdk provider")
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatalf("expected traceparent to be injected")
	}
}
