// Package otelhelper provides tracing helpers for rule dispatch and workflow interpretation.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Common attribute keys.
	TenantIDKey     = "dealflow.tenant.id"
	RuleIDKey       = "dealflow.rule.id"
	RuleNameKey     = "dealflow.rule.name"
	TriggerTypeKey  = "dealflow.trigger.type"
	ActionTypeKey   = "dealflow.action.type"
	EventIDKey      = "dealflow.event.id"
	EventTypeKey    = "dealflow.event.type"
	EntityKey       = "dealflow.entity"
	WorkflowIDKey   = "dealflow.workflow.id"
	EnrollmentIDKey = "dealflow.enrollment.id"
	NodeIDKey       = "dealflow.node.id"
	NodeTypeKey     = "dealflow.node.type"
	ExecutionIDKey  = "dealflow.execution.id"
)

// TracerName is the instrumentation name used by the engine packages.
const TracerName = "github.com/dukex/dealflow"

// Tracer returns the engine tracer from the global provider. It is a no-op until
// NewTracer installs an exporter.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracer installs an OTLP HTTP exporter as the global tracer provider. The returned
// function flushes and stops it.
func InitTracer(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	return provider.Shutdown, nil
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}

// SetError marks the span failed and records err with attrs.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
