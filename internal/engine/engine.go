// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package engine wires ingestion, storage, assembly, classification, live
// fan-out, rollups, and budget checks into the single facade that every
// transport (HTTP, MCP) calls into.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/wefthq/weft/internal/assemble"
	"github.com/wefthq/weft/internal/budget"
	"github.com/wefthq/weft/internal/classify"
	"github.com/wefthq/weft/internal/live"
	"github.com/wefthq/weft/internal/rollup"
	"github.com/wefthq/weft/internal/store"
	wefterrors "github.com/wefthq/weft/pkg/errors"
	"github.com/wefthq/weft/pkg/telemetry"
)

// Defaults for the store retry policy when the options leave them zero.
const (
	DefaultRetryAttempts    = 3
	DefaultRetryBackoffBase = 50 * time.Millisecond
)

// Sink receives every ingested span after classification and merging.
// Enqueue must not block; the forwarder satisfies this with a bounded
// drop-oldest queue.
type Sink interface {
	Enqueue(span *telemetry.Span)
}

// Options configures an Engine. Store, Assembler, Classifier, Live, and
// Roller are required; the rest are optional.
type Options struct {
	Store      store.Store
	Assembler  *assemble.Assembler
	Classifier *classify.Classifier
	Live       *live.Broadcaster
	Roller     *rollup.Roller

	// Budget enables budget checks. Nil reports an unconfigured budget.
	Budget *budget.Tracker

	// Forward mirrors ingested spans to an external collector. Nil
	// disables forwarding.
	Forward Sink

	// Metrics records self-telemetry. Nil disables it.
	Metrics *Metrics

	Logger *slog.Logger

	// RetryAttempts is how many times a retryable store failure is
	// retried before the ingest fails.
	RetryAttempts int

	// RetryBackoffBase is the initial delay between store retries; it
	// doubles on each attempt.
	RetryBackoffBase time.Duration
}

// Engine is the trace aggregation core.
type Engine struct {
	store      store.Store
	assembler  *assemble.Assembler
	classifier *classify.Classifier
	live       *live.Broadcaster
	roller     *rollup.Roller
	budget     *budget.Tracker
	forward    Sink
	metrics    *Metrics
	logger     *slog.Logger

	retryAttempts    int
	retryBackoffBase time.Duration
}

// New assembles an Engine from its collaborators.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Store == nil:
		return nil, wefterrors.New("engine: store is required")
	case opts.Assembler == nil:
		return nil, wefterrors.New("engine: assembler is required")
	case opts.Classifier == nil:
		return nil, wefterrors.New("engine: classifier is required")
	case opts.Live == nil:
		return nil, wefterrors.New("engine: live broadcaster is required")
	case opts.Roller == nil:
		return nil, wefterrors.New("engine: roller is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryBackoffBase <= 0 {
		opts.RetryBackoffBase = DefaultRetryBackoffBase
	}

	e := &Engine{
		store:            opts.Store,
		assembler:        opts.Assembler,
		classifier:       opts.Classifier,
		live:             opts.Live,
		roller:           opts.Roller,
		budget:           opts.Budget,
		forward:          opts.Forward,
		metrics:          opts.Metrics,
		logger:           logger,
		retryAttempts:    opts.RetryAttempts,
		retryBackoffBase: opts.RetryBackoffBase,
	}

	if e.metrics != nil {
		if err := e.metrics.observeEngine(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Ingest accepts one span: validate, classify, persist, merge into the hot
// cache, and fan out to live subscribers and the forwarder. The returned
// span is the merged record as the trace now holds it.
//
// Retryable store failures are retried with bounded backoff; once the
// budget is spent the ingest fails to the caller, keeping the store the
// ground truth a replay can trust.
func (e *Engine) Ingest(ctx context.Context, span *telemetry.Span) (*telemetry.Span, error) {
	started := time.Now()

	if err := validateSpan(span); err != nil {
		e.metrics.recordRejected(ctx)
		return nil, err
	}

	// Work on a clone so classification never mutates the caller's span.
	span = span.Clone()
	cls := e.classifier.Classify(span)
	classify.Apply(span, cls)

	if err := e.persist(ctx, span); err != nil {
		e.metrics.recordStoreFailure(ctx)
		e.logger.Warn("span ingest failed at store",
			slog.String("trace_id", span.TraceID),
			slog.String("span_id", span.SpanID),
			slog.Any("error", err),
		)
		return nil, err
	}

	merged := e.assembler.Ingest(span)
	e.live.Publish(merged)
	if e.forward != nil {
		e.forward.Enqueue(merged)
	}

	e.metrics.recordIngested(ctx, cls.IsModelCall(), time.Since(started))
	return merged, nil
}

// persist appends the span to the store, retrying retryable failures with
// doubling backoff.
func (e *Engine) persist(ctx context.Context, span *telemetry.Span) error {
	backoff := e.retryBackoffBase
	for attempt := 0; ; attempt++ {
		err := e.store.Append(ctx, span)
		if err == nil || !wefterrors.IsRetryable(err) || attempt >= e.retryAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// BatchError records why one span of a batch was rejected.
type BatchError struct {
	Index int
	Err   error
}

// BatchResult is the outcome of a batch ingest.
type BatchResult struct {
	Accepted int
	Rejected []BatchError
}

// IngestBatch accepts a batch of spans with per-item tolerance: a bad span
// is recorded in the result and the rest of the batch proceeds. Only
// context cancellation aborts the batch.
func (e *Engine) IngestBatch(ctx context.Context, spans []*telemetry.Span) (BatchResult, error) {
	var result BatchResult
	for i, span := range spans {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := e.Ingest(ctx, span); err != nil {
			result.Rejected = append(result.Rejected, BatchError{Index: i, Err: err})
			continue
		}
		result.Accepted++
	}
	return result, nil
}

// GetTrace returns the assembled trace. A resident trace is served from
// the hot cache; otherwise spans are loaded from the store and the trace
// is warmed back in so the next read is hot.
func (e *Engine) GetTrace(ctx context.Context, traceID string) (*telemetry.Trace, error) {
	if traceID == "" {
		return nil, &wefterrors.ValidationError{
			Field:   "trace_id",
			Message: "trace_id is required",
		}
	}

	if tr := e.assembler.GetTrace(traceID); tr != nil {
		return tr, nil
	}

	spans, err := e.store.GetSpans(ctx, traceID)
	if err != nil {
		return nil, err
	}
	tr := e.assembler.Warm(traceID, spans)
	if tr == nil {
		return nil, &wefterrors.NotFoundError{Resource: "trace", ID: traceID}
	}
	return tr, nil
}

// ListTraces returns trace summaries from durable storage, newest first.
func (e *Engine) ListTraces(ctx context.Context, filter store.Filter) ([]telemetry.TraceSummary, error) {
	return e.store.ListTraces(ctx, filter)
}

// SubscribeLive registers a live span subscriber. See live.Broadcaster.
func (e *Engine) SubscribeLive() (string, <-chan *telemetry.Span, func()) {
	return e.live.Subscribe()
}

// Rollup aggregates model-call activity by provider and model.
func (e *Engine) Rollup(ctx context.Context, window telemetry.Window, filter rollup.Filter) ([]telemetry.ProviderMetric, error) {
	return e.roller.Rollup(ctx, window, filter)
}

// CostByProject aggregates model-call activity by owning project.
func (e *Engine) CostByProject(ctx context.Context, window telemetry.Window) ([]telemetry.ProjectCost, error) {
	return e.roller.CostByProject(ctx, window)
}

// ExecutionSummary builds the wide event for one workflow execution.
func (e *Engine) ExecutionSummary(ctx context.Context, executionID string) (telemetry.ExecutionSummary, error) {
	if executionID == "" {
		return telemetry.ExecutionSummary{}, &wefterrors.ValidationError{
			Field:   "execution_id",
			Message: "execution_id is required",
		}
	}
	return e.roller.SummarizeExecution(ctx, executionID)
}

// Budget reports token usage against the configured budget. Without a
// tracker the report is simply "not configured".
func (e *Engine) Budget(ctx context.Context) (budget.Report, error) {
	if e.budget == nil {
		return budget.Report{Enabled: false, Status: budget.StatusOK}, nil
	}
	return e.budget.Check(ctx)
}

// Stats is a point-in-time snapshot of engine health counters.
type Stats struct {
	ResidentTraces  int   `json:"resident_traces"`
	EvictedTraces   int64 `json:"evicted_traces"`
	LiveSubscribers int   `json:"live_subscribers"`
	LiveDropped     int64 `json:"live_dropped"`
}

// Stats returns current engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		ResidentTraces:  e.assembler.Len(),
		EvictedTraces:   e.assembler.EvictedTotal(),
		LiveSubscribers: e.live.SubscriberCount(),
		LiveDropped:     e.live.Dropped(),
	}
}

// validateSpan enforces the only rejection rule: a span must carry its
// identifiers. Everything else about a span's shape is tolerated.
func validateSpan(span *telemetry.Span) error {
	if span == nil {
		return &wefterrors.ValidationError{
			Field:   "span",
			Message: "span must not be nil",
		}
	}
	if span.TraceID == "" {
		return &wefterrors.ValidationError{
			Field:      "trace_id",
			Message:    "trace_id is required",
			Suggestion: "every span must carry the trace it belongs to",
		}
	}
	if span.SpanID == "" {
		return &wefterrors.ValidationError{
			Field:      "span_id",
			Message:    "span_id is required",
			Suggestion: "every span must carry its own identifier",
		}
	}
	return nil
}
