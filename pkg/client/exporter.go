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

package client

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/wefthq/weft/pkg/telemetry"
)

// executionIDKey is the span attribute an otel producer sets to link
// its spans to a workflow execution. The exporter lifts it into the
// span's ExecutionID field.
const executionIDKey = "weft.execution_id"

// ExporterOptions configures an Exporter.
type ExporterOptions struct {
	// Logger receives export failure warnings. Discarded when nil.
	Logger *slog.Logger
}

// Exporter plugs weft into an existing OpenTelemetry pipeline as a
// trace.SpanExporter. Spans the otel SDK finishes are converted and
// shipped to the daemon; export failures are logged and dropped so
// telemetry never fails the instrumented program.
type Exporter struct {
	client *Client
	logger *slog.Logger
}

// NewExporter creates an Exporter sending spans through c.
func NewExporter(c *Client, opts ExporterOptions) *Exporter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{client: c, logger: logger}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *Exporter) ExportSpans(ctx context.Context, ros []sdktrace.ReadOnlySpan) error {
	if len(ros) == 0 {
		return nil
	}

	spans := make([]*telemetry.Span, 0, len(ros))
	for _, ro := range ros {
		spans = append(spans, spanFromReadOnly(ro))
	}

	result, err := e.client.IngestBatch(ctx, spans)
	if err != nil {
		e.logger.Warn("span export failed",
			slog.Int("spans", len(spans)),
			slog.Any("error", err),
		)
		return nil
	}
	if result.Rejected > 0 {
		e.logger.Warn("spans rejected by daemon",
			slog.Int("rejected", result.Rejected),
		)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return nil
}

var _ sdktrace.SpanExporter = (*Exporter)(nil)

// spanFromReadOnly converts an otel span into weft's model.
func spanFromReadOnly(ro sdktrace.ReadOnlySpan) *telemetry.Span {
	span := &telemetry.Span{
		TraceID:   ro.SpanContext().TraceID().String(),
		SpanID:    ro.SpanContext().SpanID().String(),
		Name:      ro.Name(),
		Kind:      kindFrom(ro.SpanKind()),
		StartTime: ro.StartTime(),
		EndTime:   ro.EndTime(),
	}
	if ro.Parent().IsValid() {
		span.ParentSpanID = ro.Parent().SpanID().String()
	}

	switch status := ro.Status(); status.Code {
	case codes.Ok:
		span.Status = telemetry.StatusOK
	case codes.Error:
		span.Status = telemetry.StatusError
		span.StatusMessage = status.Description
	}

	attrs := attributesFrom(ro.Attributes())
	if id, ok := attrs.String(executionIDKey); ok {
		span.ExecutionID = id
		delete(attrs, executionIDKey)
		if len(attrs) == 0 {
			attrs = nil
		}
	}
	span.Attributes = attrs
	span.Events = eventsFrom(ro.Events())
	return span
}

// kindFrom collapses otel's five span kinds onto weft's two: anything
// that left the process is external.
func kindFrom(kind trace.SpanKind) telemetry.SpanKind {
	switch kind {
	case trace.SpanKindClient, trace.SpanKindServer, trace.SpanKindProducer, trace.SpanKindConsumer:
		return telemetry.SpanKindExternal
	default:
		return telemetry.SpanKindInternal
	}
}

func attributesFrom(kvs []attribute.KeyValue) telemetry.Attributes {
	if len(kvs) == 0 {
		return nil
	}
	attrs := make(telemetry.Attributes, len(kvs))
	for _, kv := range kvs {
		attrs[string(kv.Key)] = valueFrom(kv.Value)
	}
	return attrs
}

func valueFrom(v attribute.Value) telemetry.Value {
	switch v.Type() {
	case attribute.STRING:
		return telemetry.StringValue(v.AsString())
	case attribute.BOOL:
		return telemetry.BoolValue(v.AsBool())
	case attribute.INT64:
		return telemetry.NumberValue(float64(v.AsInt64()))
	case attribute.FLOAT64:
		return telemetry.NumberValue(v.AsFloat64())
	default:
		// Slice kinds flatten to their text form.
		return telemetry.StringValue(v.Emit())
	}
}

func eventsFrom(events []sdktrace.Event) []telemetry.Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]telemetry.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, telemetry.Event{
			Name:       ev.Name,
			Timestamp:  ev.Time,
			Attributes: attributesFrom(ev.Attributes),
		})
	}
	return out
}
