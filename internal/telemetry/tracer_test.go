package telemetry

import (
	"context"
	"testing"
)

func TestNewProviderDisabledInstallsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on a disabled provider = %v, want nil", err)
	}
}

func TestNewProviderEnabledProducesSpans(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{
		Enabled: true, ServiceName: "pytrain-test", Version: "0.0.0", SamplingRate: 1.0,
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer p.Shutdown(context.Background())

	_, span := Tracer("test").Start(context.Background(), "unit-test-span")
	if !span.SpanContext().IsValid() {
		t.Error("span context should be valid when sampling is always-on")
	}
	span.End()
}

func TestNewProviderZeroSamplingRateNeverSamples(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{
		Enabled: true, ServiceName: "pytrain-test", Version: "0.0.0", SamplingRate: 0.0,
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer p.Shutdown(context.Background())

	_, span := Tracer("test").Start(context.Background(), "unsampled-span")
	defer span.End()
	if span.SpanContext().IsSampled() {
		t.Error("span should not be sampled when SamplingRate is 0")
	}
}
