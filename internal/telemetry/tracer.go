// Package telemetry provides OpenTelemetry tracing for PyTrain's
// in-process pipeline: spans around the dispatcher's fan-out and the
// synchronizer's startup walk, so a slow handler or a stuck hydration
// retry shows up in a trace even without a collector endpoint wired in.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config selects whether tracing is active and how heavily spans are
// sampled.
type Config struct {
	Enabled      bool
	ServiceName  string
	Version      string
	SamplingRate float64 // 0.0-1.0; ignored when Enabled is false
}

// Provider owns the process-wide TracerProvider's lifecycle.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs a TracerProvider as the global default. With no
// collector endpoint in scope (see DESIGN.md), spans are sampled and
// built but not exported anywhere; this still exercises the real SDK
// span lifecycle rather than a hand-rolled stand-in, and the exporter
// can be added later without touching call sites.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes and releases the TracerProvider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

// Tracer returns a named tracer off the current global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
