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

package export

import (
	"crypto/sha256"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wefthq/weft/pkg/telemetry"
)

var (
	forwardResource = resource.NewSchemaless(semconv.ServiceName("weft"))
	forwardScope    = instrumentation.Scope{Name: "github.com/wefthq/weft"}
)

// snapshots converts spans into the read-only form the OTLP exporters
// consume.
func snapshots(spans []*telemetry.Span) []sdktrace.ReadOnlySpan {
	out := make([]sdktrace.ReadOnlySpan, 0, len(spans))
	for _, span := range spans {
		out = append(out, snapshot(span))
	}
	return out
}

// snapshot builds a ReadOnlySpan for one span. Identifiers that are
// already valid W3C hex pass through; anything else is hashed into a
// stable synthetic ID so free-form producer IDs still correlate.
func snapshot(span *telemetry.Span) sdktrace.ReadOnlySpan {
	traceID := traceIDFor(span.TraceID)

	stub := tracetest.SpanStub{
		Name: span.Name,
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanIDFor(span.SpanID),
			TraceFlags: trace.FlagsSampled,
		}),
		SpanKind:             spanKindFor(span.Kind),
		StartTime:            span.StartTime,
		EndTime:              endTimeFor(span),
		Attributes:           attributesFor(span),
		Events:               eventsFor(span.Events),
		Status:               statusFor(span),
		Resource:             forwardResource,
		InstrumentationScope: forwardScope,
	}
	if span.ParentSpanID != "" {
		stub.Parent = trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanIDFor(span.ParentSpanID),
			TraceFlags: trace.FlagsSampled,
		})
	}
	return stub.Snapshot()
}

func traceIDFor(id string) trace.TraceID {
	if tid, err := trace.TraceIDFromHex(id); err == nil {
		return tid
	}
	sum := sha256.Sum256([]byte(id))
	var tid trace.TraceID
	copy(tid[:], sum[:])
	return tid
}

func spanIDFor(id string) trace.SpanID {
	if sid, err := trace.SpanIDFromHex(id); err == nil {
		return sid
	}
	sum := sha256.Sum256([]byte(id))
	var sid trace.SpanID
	copy(sid[:], sum[:])
	return sid
}

func spanKindFor(kind telemetry.SpanKind) trace.SpanKind {
	if kind == telemetry.SpanKindExternal {
		return trace.SpanKindClient
	}
	return trace.SpanKindInternal
}

// endTimeFor substitutes the start time for open spans; OTLP spans must
// end, and the completing upsert will be forwarded again anyway.
func endTimeFor(span *telemetry.Span) time.Time {
	if span.EndTime.IsZero() {
		return span.StartTime
	}
	return span.EndTime
}

func statusFor(span *telemetry.Span) sdktrace.Status {
	switch span.Status {
	case telemetry.StatusOK:
		return sdktrace.Status{Code: codes.Ok}
	case telemetry.StatusError:
		return sdktrace.Status{Code: codes.Error, Description: span.StatusMessage}
	default:
		return sdktrace.Status{Code: codes.Unset}
	}
}

// attributesFor flattens the span's attribute map plus the derived weft
// fields, so the collector keeps the classification results.
func attributesFor(span *telemetry.Span) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(span.Attributes)+3)
	for key, value := range span.Attributes {
		attrs = append(attrs, keyValueFor(key, value))
	}
	if span.ExecutionID != "" {
		attrs = append(attrs, attribute.String("weft.execution_id", span.ExecutionID))
	}
	if span.TokensUsed != nil {
		attrs = append(attrs, attribute.Int64("weft.tokens_used", *span.TokensUsed))
	}
	if span.EstimatedCost != nil {
		attrs = append(attrs, attribute.Float64("weft.estimated_cost", *span.EstimatedCost))
	}
	return attrs
}

func keyValueFor(key string, value telemetry.Value) attribute.KeyValue {
	switch value.Kind() {
	case telemetry.KindNumber:
		f, _ := value.Float64()
		return attribute.Float64(key, f)
	case telemetry.KindBool:
		b, _ := value.Bool()
		return attribute.Bool(key, b)
	default:
		return attribute.String(key, value.String())
	}
}

func eventsFor(events []telemetry.Event) []sdktrace.Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]sdktrace.Event, 0, len(events))
	for _, ev := range events {
		attrs := make([]attribute.KeyValue, 0, len(ev.Attributes))
		for key, value := range ev.Attributes {
			attrs = append(attrs, keyValueFor(key, value))
		}
		out = append(out, sdktrace.Event{
			Name:       ev.Name,
			Time:       ev.Timestamp,
			Attributes: attrs,
		})
	}
	return out
}
