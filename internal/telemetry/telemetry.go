package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the OTLP providers a pipeline run reports through: traces
// for stage spans, metrics for transition and document counters, and the
// log provider backing the zap bridge.
//
// A provider that fails to initialize never fails startup. The affected
// signal stays no-op and the reason is surfaced through Degraded so the
// caller can log it once the logger exists.
type Telemetry struct {
	config *Config

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    *sdklog.LoggerProvider

	degraded  []string
	shutdowns []func(context.Context) error
}

// New initializes providers per config and installs them as the otel
// globals. Disabled config yields an instance whose accessors hand out
// no-op implementations.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		t.degrade("resource: %v", err)
		return t, nil
	}

	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.degrade("traces: %v", err)
	} else {
		t.tracerProvider = tp
		t.shutdowns = append(t.shutdowns, tp.Shutdown)
		otel.SetTracerProvider(tp)
	}

	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.degrade("metrics: %v", err)
	} else if mp != nil {
		t.meterProvider = mp
		t.shutdowns = append(t.shutdowns, mp.Shutdown)
		otel.SetMeterProvider(mp)
	}

	if lp, err := newLoggerProvider(ctx, cfg, res); err != nil {
		t.degrade("logs: %v", err)
	} else {
		t.logProvider = lp
		t.shutdowns = append(t.shutdowns, lp.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return t, nil
}

func (t *Telemetry) degrade(format string, args ...any) {
	t.degraded = append(t.degraded, fmt.Sprintf(format, args...))
}

// Degraded lists signals whose provider failed at startup. Empty means
// every configured signal is exporting.
func (t *Telemetry) Degraded() []string {
	if t == nil {
		return nil
	}
	return t.degraded
}

// Tracer returns a tracer for the given scope, falling back to the global
// (no-op when unset) provider if telemetry is disabled or degraded.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter for the given scope, with the same fallback
// behavior as Tracer.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider returns the provider the zap bridge core forwards entries
// through. Nil when telemetry is disabled or the log exporter failed; the
// logger then writes to stdout only.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.logProvider == nil {
		return nil
	}
	return t.logProvider
}

// Shutdown flushes and stops every provider that was started. When the
// context carries no deadline, the configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout.Duration())
		defer cancel()
	}

	var errs []error
	for _, stop := range t.shutdowns {
		if err := stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
