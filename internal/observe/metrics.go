// Package observe provides application-wide observability primitives for the
// concierge session core: OpenTelemetry metrics, tracing, structured logging
// helpers, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all concierge metrics.
const meterName = "github.com/real-business/concierge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks end-to-end chat turn latency (submit to terminal
	// outcome).
	TurnDuration metric.Float64Histogram

	// TranslationDuration tracks batch UI-string translation latency.
	TranslationDuration metric.Float64Histogram

	// CallSetupDuration tracks conversation-creation latency for video calls.
	CallSetupDuration metric.Float64Histogram

	// --- Counters ---

	// CompletionRequests counts completion backend calls. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"garbled")
	CompletionRequests metric.Int64Counter

	// EchoEvents counts "speak this script" events relayed to the avatar call.
	EchoEvents metric.Int64Counter

	// InterruptEvents counts interrupt events relayed to the avatar call.
	InterruptEvents metric.Int64Counter

	// RecognizedUtterances counts finalized speech-recognition results that
	// were fed back into the chat loop.
	RecognizedUtterances metric.Int64Counter

	// TranslationRequests counts batch translation calls. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"skipped")
	TranslationRequests metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live video call conversations
	// (0 or 1 per widget instance).
	ActiveCalls metric.Int64UpDownCounter

	// ActiveRecognitionSessions tracks open speech-recognition sessions.
	ActiveRecognitionSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// conversational-turn latencies, which are dominated by remote LLM calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("concierge.turn.duration",
		metric.WithDescription("End-to-end latency of one chat turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("concierge.translation.duration",
		metric.WithDescription("Latency of batch UI-string translation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallSetupDuration, err = m.Float64Histogram("concierge.call.setup_duration",
		metric.WithDescription("Latency of video call conversation creation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CompletionRequests, err = m.Int64Counter("concierge.completion.requests",
		metric.WithDescription("Number of completion backend calls."),
	); err != nil {
		return nil, err
	}
	if met.EchoEvents, err = m.Int64Counter("concierge.call.echo_events",
		metric.WithDescription("Number of echo (speak) events relayed to the avatar call."),
	); err != nil {
		return nil, err
	}
	if met.InterruptEvents, err = m.Int64Counter("concierge.call.interrupt_events",
		metric.WithDescription("Number of interrupt events relayed to the avatar call."),
	); err != nil {
		return nil, err
	}
	if met.RecognizedUtterances, err = m.Int64Counter("concierge.speech.recognized",
		metric.WithDescription("Number of finalized speech-recognition results."),
	); err != nil {
		return nil, err
	}
	if met.TranslationRequests, err = m.Int64Counter("concierge.translation.requests",
		metric.WithDescription("Number of batch translation calls."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveCalls, err = m.Int64UpDownCounter("concierge.call.active",
		metric.WithDescription("Number of live video call conversations."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecognitionSessions, err = m.Int64UpDownCounter("concierge.speech.active_sessions",
		metric.WithDescription("Number of open speech-recognition sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP.
	if met.HTTPRequestDuration, err = m.Float64Histogram("concierge.http.request_duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first use from the globally registered meter provider. Call [InitProvider]
// first in production so instruments bind to the Prometheus bridge.
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

// RecordCompletion records one completion backend call with its outcome
// status ("ok", "error", or "garbled").
func (m *Metrics) RecordCompletion(ctx context.Context, status string) {
	m.CompletionRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordTranslation records one batch translation call with its outcome
// status ("ok", "error", or "skipped").
func (m *Metrics) RecordTranslation(ctx context.Context, status string) {
	m.TranslationRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
