package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records the engine's self-telemetry through an OpenTelemetry
// meter. Every record method is safe on a nil receiver, so the engine can
// run with metrics disabled.
type Metrics struct {
	meter metric.Meter

	ingestedTotal metric.Int64Counter
	rejectedTotal metric.Int64Counter
	storeFailures metric.Int64Counter
	ingestLatency metric.Float64Histogram
}

// NewMetrics creates the engine's instruments on the given meter provider.
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	meter := meterProvider.Meter("weft")

	m := &Metrics{meter: meter}

	var err error

	m.ingestedTotal, err = meter.Int64Counter(
		"weft_spans_ingested_total",
		metric.WithDescription("Total number of spans accepted"),
		metric.WithUnit("{span}"),
	)
	if err != nil {
		return nil, err
	}

	m.rejectedTotal, err = meter.Int64Counter(
		"weft_spans_rejected_total",
		metric.WithDescription("Total number of spans rejected by validation"),
		metric.WithUnit("{span}"),
	)
	if err != nil {
		return nil, err
	}

	m.storeFailures, err = meter.Int64Counter(
		"weft_store_append_failures_total",
		metric.WithDescription("Total number of ingests failed after exhausting store retries"),
		metric.WithUnit("{span}"),
	)
	if err != nil {
		return nil, err
	}

	m.ingestLatency, err = meter.Float64Histogram(
		"weft_ingest_duration_seconds",
		metric.WithDescription("Span ingest latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// observeEngine registers the gauges that read live engine state. Called
// once from engine construction.
func (m *Metrics) observeEngine(e *Engine) error {
	if m == nil {
		return nil
	}

	_, err := m.meter.Int64ObservableGauge(
		"weft_resident_traces",
		metric.WithDescription("Number of traces resident in the hot cache"),
		metric.WithUnit("{trace}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(e.assembler.Len()))
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = m.meter.Int64ObservableCounter(
		"weft_evicted_traces_total",
		metric.WithDescription("Total number of traces evicted from the hot cache"),
		metric.WithUnit("{trace}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(e.assembler.EvictedTotal())
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = m.meter.Int64ObservableGauge(
		"weft_live_subscribers",
		metric.WithDescription("Number of connected live subscribers"),
		metric.WithUnit("{subscriber}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(e.live.SubscriberCount()))
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = m.meter.Int64ObservableCounter(
		"weft_live_dropped_total",
		metric.WithDescription("Total number of spans dropped from slow subscriber queues"),
		metric.WithUnit("{span}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(e.live.Dropped())
			return nil
		}),
	)
	return err
}

func (m *Metrics) recordIngested(ctx context.Context, modelCall bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("model_call", modelCall))
	m.ingestedTotal.Add(ctx, 1, attrs)
	m.ingestLatency.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) recordRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.rejectedTotal.Add(ctx, 1)
}

func (m *Metrics) recordStoreFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.storeFailures.Add(ctx, 1)
}
