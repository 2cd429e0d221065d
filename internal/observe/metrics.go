// Package observe provides application-wide observability primitives for
// visemesync: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all visemesync metrics.
const meterName = "github.com/MrWong99/visemesync"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Animation loop ---

	// TickDuration tracks how long one animation tick takes to compute and
	// publish. Use with attribute.String("mode", ...).
	TickDuration metric.Float64Histogram

	// Ticks counts completed animation ticks. Use with attribute:
	//   attribute.String("mode", ...)
	Ticks metric.Int64Counter

	// VisemeChanges counts transitions into a viseme. Use with attribute:
	//   attribute.String("viseme", ...)
	VisemeChanges metric.Int64Counter

	// TickErrors counts ticks that ended a session abnormally. Use with
	// attribute.String("kind", ...): "stale_source", "malformed_timeline",
	// "panic".
	TickErrors metric.Int64Counter

	// Attaches counts attach requests. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("status", ...)
	Attaches metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a source is attached and 0 otherwise.
	ActiveSessions metric.Int64UpDownCounter

	// Subscribers tracks registered render listeners.
	Subscribers metric.Int64UpDownCounter

	// RenderClients tracks connected websocket renderers.
	RenderClients metric.Int64UpDownCounter

	// --- Ingest ---

	// IngestFrames counts PCM frames received over the audio websocket. Use
	// with attribute.String("status", ...): "accepted" or "dropped".
	IngestFrames metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// tickBuckets defines histogram bucket boundaries (in seconds) sized for a
// loop that must finish well inside a 20 ms frame.
var tickBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TickDuration, err = m.Float64Histogram("visemesync.tick.duration",
		metric.WithDescription("Time spent computing and publishing one animation tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Ticks, err = m.Int64Counter("visemesync.ticks",
		metric.WithDescription("Total animation ticks by mode."),
	); err != nil {
		return nil, err
	}
	if met.VisemeChanges, err = m.Int64Counter("visemesync.viseme.changes",
		metric.WithDescription("Total viseme transitions by target viseme."),
	); err != nil {
		return nil, err
	}
	if met.TickErrors, err = m.Int64Counter("visemesync.tick.errors",
		metric.WithDescription("Total ticks that ended a session abnormally, by kind."),
	); err != nil {
		return nil, err
	}
	if met.Attaches, err = m.Int64Counter("visemesync.attaches",
		metric.WithDescription("Total attach requests by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.IngestFrames, err = m.Int64Counter("visemesync.ingest.frames",
		metric.WithDescription("Total PCM frames received over the ingest socket by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("visemesync.active_sessions",
		metric.WithDescription("Number of attached sources (0 or 1 per engine)."),
	); err != nil {
		return nil, err
	}
	if met.Subscribers, err = m.Int64UpDownCounter("visemesync.subscribers",
		metric.WithDescription("Number of registered render listeners."),
	); err != nil {
		return nil, err
	}
	if met.RenderClients, err = m.Int64UpDownCounter("visemesync.render_clients",
		metric.WithDescription("Number of connected websocket renderers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("visemesync.http.request.duration",
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

// RecordTick records one completed tick and its duration.
func (m *Metrics) RecordTick(ctx context.Context, mode string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.Ticks.Add(ctx, 1, attrs)
	m.TickDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordVisemeChange records a transition into the named viseme.
func (m *Metrics) RecordVisemeChange(ctx context.Context, viseme string) {
	m.VisemeChanges.Add(ctx, 1,
		metric.WithAttributes(attribute.String("viseme", viseme)),
	)
}

// RecordTickError records an abnormal session end of the given kind.
func (m *Metrics) RecordTickError(ctx context.Context, kind string) {
	m.TickErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordAttach records an attach request outcome.
func (m *Metrics) RecordAttach(ctx context.Context, mode, status string) {
	m.Attaches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordIngestFrame records a received PCM frame.
func (m *Metrics) RecordIngestFrame(ctx context.Context, status string) {
	m.IngestFrames.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
