// Package observe provides application-wide observability primitives for
// SmartChat: OpenTelemetry metrics, tracing, structured logging, and an
// instrumented HTTP transport for the backend client.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the optional /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all SmartChat metrics.
const meterName = "github.com/smartchat-ai/smartchat"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SendDuration tracks the round trip from submitting a message to
	// receiving the assistant's reply.
	SendDuration metric.Float64Histogram

	// SynthesisDuration tracks time from starting speech synthesis to the
	// first audio chunk arriving.
	SynthesisDuration metric.Float64Histogram

	// APIRequestDuration tracks backend HTTP request latency. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...),
	// attribute.Int("status", ...).
	APIRequestDuration metric.Float64Histogram

	// --- Counters ---

	// SendRequests counts message sends. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"unauthorized")
	SendRequests metric.Int64Counter

	// GrammarChecks counts grammar-check requests. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"unauthorized")
	GrammarChecks metric.Int64Counter

	// DanglingSends counts user messages left without a server identity
	// because their send failed.
	DanglingSends metric.Int64Counter

	// CaptureRestarts counts recognition sessions restarted after the
	// provider ended one on its own while capture was still wanted.
	CaptureRestarts metric.Int64Counter

	// PlaybackPreemptions counts playbacks cancelled because a newer
	// utterance took over the audio output.
	PlaybackPreemptions metric.Int64Counter

	// --- Gauges ---

	// CaptureActive is 1 while voice capture is running, 0 otherwise.
	CaptureActive metric.Int64UpDownCounter

	// PlaybackActive is 1 while speech playback is running, 0 otherwise.
	PlaybackActive metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// conversational round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SendDuration, err = m.Float64Histogram("smartchat.send.duration",
		metric.WithDescription("Round-trip latency of a message send, submit to reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("smartchat.synthesis.duration",
		metric.WithDescription("Time to first synthesized audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.APIRequestDuration, err = m.Float64Histogram("smartchat.api.request.duration",
		metric.WithDescription("Backend HTTP request latency by method, path, and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SendRequests, err = m.Int64Counter("smartchat.send.requests",
		metric.WithDescription("Total message sends by status."),
	); err != nil {
		return nil, err
	}
	if met.GrammarChecks, err = m.Int64Counter("smartchat.grammar.checks",
		metric.WithDescription("Total grammar-check requests by status."),
	); err != nil {
		return nil, err
	}
	if met.DanglingSends, err = m.Int64Counter("smartchat.send.dangling",
		metric.WithDescription("User messages left without a server identity after a failed send."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRestarts, err = m.Int64Counter("smartchat.capture.restarts",
		metric.WithDescription("Recognition sessions restarted after ending on their own."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackPreemptions, err = m.Int64Counter("smartchat.playback.preemptions",
		metric.WithDescription("Playbacks cancelled in favour of a newer utterance."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.CaptureActive, err = m.Int64UpDownCounter("smartchat.capture.active",
		metric.WithDescription("Whether voice capture is currently running."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackActive, err = m.Int64UpDownCounter("smartchat.playback.active",
		metric.WithDescription("Whether speech playback is currently running."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSend records one message send with its round-trip duration and
// outcome status.
func (m *Metrics) RecordSend(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.SendRequests.Add(ctx, 1, attrs)
	m.SendDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordGrammarCheck records one grammar-check request with its outcome
// status.
func (m *Metrics) RecordGrammarCheck(ctx context.Context, status string) {
	m.GrammarChecks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordDanglingSend records a user message left provisional by a failed send.
func (m *Metrics) RecordDanglingSend(ctx context.Context) {
	m.DanglingSends.Add(ctx, 1)
}

// RecordCaptureRestart records a recognition session restart.
func (m *Metrics) RecordCaptureRestart(ctx context.Context) {
	m.CaptureRestarts.Add(ctx, 1)
}

// RecordPlaybackPreemption records a playback cancelled by a newer utterance.
func (m *Metrics) RecordPlaybackPreemption(ctx context.Context) {
	m.PlaybackPreemptions.Add(ctx, 1)
}
