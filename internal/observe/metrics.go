// Package observe provides application-wide observability primitives for
// Formvoice: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Formvoice metrics.
const meterName = "github.com/formvoice/formvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio pipeline counters ---

	// FramesCaptured counts audio frames read from the input device.
	FramesCaptured metric.Int64Counter

	// FramesTransmitted counts VAD-gated frames sent to the live session.
	FramesTransmitted metric.Int64Counter

	// FramesPlayed counts audio frames written to the output device.
	FramesPlayed metric.Int64Counter

	// FramesDropped counts frames discarded on queue overflow or while the
	// playback guard was active. Use with attribute:
	//   attribute.String("queue", "inbound"|"outbound"|"guard")
	FramesDropped metric.Int64Counter

	// --- Form counters ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// EventsDropped counts broadcast events dropped due to slow subscribers.
	EventsDropped metric.Int64Counter

	// --- Latency histograms ---

	// ToolCallDuration tracks tool-call batch handling latency.
	ToolCallDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of running voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Pipeline counters.
	if met.FramesCaptured, err = m.Int64Counter("formvoice.frames.captured",
		metric.WithDescription("Total audio frames read from the input device."),
	); err != nil {
		return nil, err
	}
	if met.FramesTransmitted, err = m.Int64Counter("formvoice.frames.transmitted",
		metric.WithDescription("Total frames sent to the live session."),
	); err != nil {
		return nil, err
	}
	if met.FramesPlayed, err = m.Int64Counter("formvoice.frames.played",
		metric.WithDescription("Total frames written to the output device."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("formvoice.frames.dropped",
		metric.WithDescription("Total frames discarded, by queue."),
	); err != nil {
		return nil, err
	}

	// Form counters.
	if met.ToolCalls, err = m.Int64Counter("formvoice.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("formvoice.events.dropped",
		metric.WithDescription("Total broadcast events dropped due to slow subscribers."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ToolCallDuration, err = m.Float64Histogram("formvoice.tool_call.duration",
		metric.WithDescription("Latency of tool-call batch handling."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("formvoice.active_sessions",
		metric.WithDescription("Number of running voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("formvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordFrameDropped records one discarded frame for the named queue.
func (m *Metrics) RecordFrameDropped(ctx context.Context, queue string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("queue", queue)),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
