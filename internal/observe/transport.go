package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Transport is an [http.RoundTripper] that instruments outbound backend
// requests:
//
//  1. Starts a client span for the request and injects W3C Trace Context into
//     the outgoing headers.
//  2. Records request duration to [Metrics.APIRequestDuration] with method,
//     path, and status attributes.
//  3. Logs completion at debug level with trace info.
//
// Wrap the backend client's http.Client with [NewTransport].
type Transport struct {
	base    http.RoundTripper
	metrics *Metrics
	prop    propagation.TraceContext
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps base with request instrumentation. A nil base uses
// [http.DefaultTransport].
func NewTransport(base http.RoundTripper, m *Metrics) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, metrics: m}
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, span := StartSpan(req.Context(), "HTTP "+req.Method+" "+req.URL.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
		),
	)
	defer span.End()

	req = req.Clone(ctx)
	t.prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)

	duration := time.Since(start)
	status := 0
	if resp != nil {
		status = resp.StatusCode
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	}
	if t.metrics != nil {
		t.metrics.APIRequestDuration.Record(ctx, duration.Seconds(),
			metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("path", req.URL.Path),
				attribute.Int("status", status),
			),
		)
	}

	slog.LogAttrs(ctx, slog.LevelDebug, "backend request completed",
		slog.String("trace_id", CorrelationID(ctx)),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
	)

	return resp, err
}
