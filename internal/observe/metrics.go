// Package observe provides application-wide observability primitives for
// Friday: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Friday metrics.
const meterName = "github.com/syedmehfooz47/Friday2"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks the time from a turn's first event to its
	// turn-complete marker.
	TurnDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// FramesCaptured counts microphone frames by outcome. Use with attribute:
	//   attribute.String("outcome", "forwarded"|"gated")
	FramesCaptured metric.Int64Counter

	// FramesSent counts frames transmitted to the model.
	FramesSent metric.Int64Counter

	// FramesDropped counts frames dropped at send time by the gate recheck.
	FramesDropped metric.Int64Counter

	// AudioChunksReceived counts assistant audio chunks received from the
	// model.
	AudioChunksReceived metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// Turns counts completed model turns.
	Turns metric.Int64Counter

	// Interrupts counts accepted stop-speaking requests. Use with attribute:
	//   attribute.String("source", "voice"|"control")
	Interrupts metric.Int64Counter

	// MuteToggles counts mute-state change attempts. Use with attributes:
	//   attribute.String("source", ...), attribute.String("status", "applied"|"rejected")
	MuteToggles metric.Int64Counter

	// KeepAlives counts keep-alive frames injected by the connection monitor.
	KeepAlives metric.Int64Counter

	// --- Gauges ---

	// SessionActive is 1 while a live session is running.
	SessionActive metric.Int64UpDownCounter

	// ControlClients tracks the number of connected control-plane
	// WebSocket clients.
	ControlClients metric.Int64UpDownCounter

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

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("friday.turn.duration",
		metric.WithDescription("Time from a turn's first event to its completion marker."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("friday.tool_execution.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesCaptured, err = m.Int64Counter("friday.audio.frames_captured",
		metric.WithDescription("Microphone frames read, by gate outcome."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("friday.audio.frames_sent",
		metric.WithDescription("Frames transmitted to the model."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("friday.audio.frames_dropped",
		metric.WithDescription("Frames dropped by the send-time gate recheck."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksReceived, err = m.Int64Counter("friday.audio.chunks_received",
		metric.WithDescription("Assistant audio chunks received from the model."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("friday.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("friday.session.turns",
		metric.WithDescription("Completed model turns."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("friday.session.interrupts",
		metric.WithDescription("Accepted stop-speaking requests by source."),
	); err != nil {
		return nil, err
	}
	if met.MuteToggles, err = m.Int64Counter("friday.mute.toggles",
		metric.WithDescription("Mute-state change attempts by source and status."),
	); err != nil {
		return nil, err
	}
	if met.KeepAlives, err = m.Int64Counter("friday.session.keepalives",
		metric.WithDescription("Keep-alive frames injected by the connection monitor."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.SessionActive, err = m.Int64UpDownCounter("friday.session.active",
		metric.WithDescription("1 while a live session is running."),
	); err != nil {
		return nil, err
	}
	if met.ControlClients, err = m.Int64UpDownCounter("friday.control.clients",
		metric.WithDescription("Connected control-plane WebSocket clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("friday.http.request.duration",
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

// RecordMuteToggle is a convenience method that records a mute toggle
// attempt with the standard attribute set.
func (m *Metrics) RecordMuteToggle(ctx context.Context, source, status string) {
	m.MuteToggles.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", status),
		),
	)
}

// RecordInterrupt is a convenience method that records an accepted
// stop-speaking request.
func (m *Metrics) RecordInterrupt(ctx context.Context, source string) {
	m.Interrupts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}
