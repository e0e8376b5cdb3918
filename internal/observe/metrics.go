// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing helpers, structured logging, and HTTP
// middleware for the status port.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [Telemetry] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/weny945/home-pi"

// Metrics holds all OpenTelemetry metric instruments for the assistant.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks language-model completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-of-utterance to start-of-reply latency, the
	// number the user actually feels.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// WakeDetections counts accepted wake events. Attribute: keyword.
	WakeDetections metric.Int64Counter

	// BargeIns counts playback interruptions by user speech.
	BargeIns metric.Int64Counter

	// Rejections counts discarded utterances. Attribute: gate
	// (silence, fragment, garbage, semantic).
	Rejections metric.Int64Counter

	// RetryPrompts counts re-prompts played after a rejection.
	RetryPrompts metric.Int64Counter

	// CacheLookups counts phrase-cache probes. Attribute: result (hit, miss).
	CacheLookups metric.Int64Counter

	// EngineRequests counts backend calls. Attributes: engine, kind
	// (stt, llm, tts), status (ok, error).
	EngineRequests metric.Int64Counter

	// AlarmsFired counts alarm announcements.
	AlarmsFired metric.Int64Counter

	// --- Gauges ---

	// ActiveConversations tracks conversations not in the idle state.
	ActiveConversations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status-port request processing time. Use
	// with attributes: attribute.String("method", ...), attribute.String("path", ...)
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
	if met.STTDuration, err = m.Float64Histogram("homepi.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("homepi.llm.duration",
		metric.WithDescription("Latency of language-model completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("homepi.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("homepi.turn.duration",
		metric.WithDescription("End-of-utterance to start-of-reply latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeDetections, err = m.Int64Counter("homepi.wake.detections",
		metric.WithDescription("Accepted wake events by keyword."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("homepi.barge_ins",
		metric.WithDescription("Playback interruptions by user speech."),
	); err != nil {
		return nil, err
	}
	if met.Rejections, err = m.Int64Counter("homepi.utterance.rejections",
		metric.WithDescription("Discarded utterances by gate."),
	); err != nil {
		return nil, err
	}
	if met.RetryPrompts, err = m.Int64Counter("homepi.retry_prompts",
		metric.WithDescription("Re-prompts played after a rejected utterance."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("homepi.tts.cache.lookups",
		metric.WithDescription("Phrase-cache probes by result."),
	); err != nil {
		return nil, err
	}
	if met.EngineRequests, err = m.Int64Counter("homepi.engine.requests",
		metric.WithDescription("Backend calls by engine, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.AlarmsFired, err = m.Int64Counter("homepi.alarms.fired",
		metric.WithDescription("Alarm announcements played."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConversations, err = m.Int64UpDownCounter("homepi.active_conversations",
		metric.WithDescription("Conversations currently outside the idle state."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("homepi.http.request.duration",
		metric.WithDescription("Status-port request latency by method and path."),
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

// RecordEngineRequest records one backend call with the standard attribute
// set.
func (m *Metrics) RecordEngineRequest(ctx context.Context, engine, kind, status string) {
	m.EngineRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordWake records one accepted wake event.
func (m *Metrics) RecordWake(ctx context.Context, keyword string) {
	m.WakeDetections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("keyword", keyword)),
	)
}

// RecordRejection records one gated-out utterance.
func (m *Metrics) RecordRejection(ctx context.Context, gate string) {
	m.Rejections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("gate", gate)),
	)
}

// RecordCacheLookup records one phrase-cache probe.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}
