// Package observe holds the telemetry primitives of the phone agent:
// OpenTelemetry metrics with a Prometheus scrape bridge and a tracer
// for per-turn spans.
//
// A package-level default Metrics instance is provided for production
// wiring; tests build their own via NewMetrics with a manual reader to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all agent metrics.
const meterName = "github.com/kaiwa-ai/uketsuke"

// Metrics holds the metric instruments of the call pipeline. All
// methods are nil-safe so optional wiring stays uncluttered.
type Metrics struct {
	// TurnDuration tracks end-of-turn to response-enqueued latency.
	TurnDuration metric.Float64Histogram

	// SynthDuration tracks one text-to-speech synthesis.
	SynthDuration metric.Float64Histogram

	// Calls counts call outcomes. Attribute: status (completed,
	// cancelled, dropped).
	Calls metric.Int64Counter

	// Turns counts processed caller turns.
	Turns metric.Int64Counter

	// BargeIns counts caller interruptions of a playing prompt.
	BargeIns metric.Int64Counter

	// RecognizerRestarts counts ASR session reconnects.
	RecognizerRestarts metric.Int64Counter

	// ProviderErrors counts upstream failures. Attributes: provider,
	// kind.
	ProviderErrors metric.Int64Counter

	// ActiveCalls tracks concurrently running sessions.
	ActiveCalls metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds, tuned for the
// voice pipeline.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("uketsuke.turn.duration",
		metric.WithDescription("Latency from end of caller turn to response enqueue."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthDuration, err = m.Float64Histogram("uketsuke.synth.duration",
		metric.WithDescription("Latency of one speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Calls, err = m.Int64Counter("uketsuke.calls",
		metric.WithDescription("Finished calls by outcome status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("uketsuke.turns",
		metric.WithDescription("Processed caller turns."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("uketsuke.barge_ins",
		metric.WithDescription("Caller interruptions of a playing prompt."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerRestarts, err = m.Int64Counter("uketsuke.recognizer.restarts",
		metric.WithDescription("Streaming recognizer reconnects."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("uketsuke.provider.errors",
		metric.WithDescription("Upstream provider failures by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCalls, err = m.Int64UpDownCounter("uketsuke.active_calls",
		metric.WithDescription("Concurrently running call sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide Metrics built on the global
// meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// CallStarted marks a new live session.
func (m *Metrics) CallStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveCalls.Add(ctx, 1)
}

// CallEnded records the session outcome and releases the active slot.
func (m *Metrics) CallEnded(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.ActiveCalls.Add(ctx, -1)
	m.Calls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// TurnProcessed records one completed caller turn and its latency.
func (m *Metrics) TurnProcessed(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.Turns.Add(ctx, 1)
	m.TurnDuration.Record(ctx, seconds)
}

// BargeIn records one caller interruption.
func (m *Metrics) BargeIn(ctx context.Context) {
	if m == nil {
		return
	}
	m.BargeIns.Add(ctx, 1)
}

// RecognizerRestarted records one ASR reconnect.
func (m *Metrics) RecognizerRestarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.RecognizerRestarts.Add(ctx, 1)
}

// ProviderError records one upstream failure.
func (m *Metrics) ProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}
