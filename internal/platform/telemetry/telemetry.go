// Package telemetry wires OpenTelemetry tracing: a global tracer provider
// exporting over OTLP gRPC and an Echo middleware that names the request span
// after the matched route.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

const instrumentationName = "github.com/telecare/telecare"

// TraceHeader carries the trace id back to clients for support requests.
const TraceHeader = "X-Trace-ID"

type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // host:port
	SampleRatio    float64
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "telecare-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
}

// Setup installs the global propagator and, when enabled, a batching tracer
// provider. The returned func flushes and stops it.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	cfg.applyDefaults()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the application tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Middleware decorates the span opened by the outer otelhttp handler. The
// route pattern is only known after Echo has routed the request, so the span
// is renamed here.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			span := trace.SpanFromContext(c.Request().Context())
			if !span.SpanContext().IsValid() {
				return next(c)
			}
			c.Response().Header().Set(TraceHeader, span.SpanContext().TraceID().String())

			err := next(c)

			req := c.Request()
			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			span.SetName("HTTP " + req.Method + " " + route)

			// Errors are rendered after the middleware chain unwinds.
			status := c.Response().Status
			if err != nil {
				status = apperr.Status(err)
			}
			attrs := []attribute.KeyValue{
				semconv.HTTPRoute(route),
				attribute.Int("http.response.status_code", status),
			}
			if actor, ok := auth.ActorFromContext(req.Context()); ok {
				attrs = append(attrs,
					attribute.String("enduser.id", actor.ID.String()),
					attribute.String("enduser.role", string(actor.Role)),
				)
			}
			span.SetAttributes(attrs...)
			if status >= 500 {
				if err != nil {
					span.RecordError(err)
				}
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			}
			return err
		}
	}
}
