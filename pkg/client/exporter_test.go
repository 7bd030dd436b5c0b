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
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/wefthq/weft/pkg/telemetry"
)

const (
	testTraceIDHex  = "4bf92f3577b34da6a3ce929d0e0e4736"
	testSpanIDHex   = "00f067aa0ba902b7"
	testParentIDHex = "53995c3f42cd8ad8"
)

func makeSpanContext(t *testing.T, traceID, spanID string) trace.SpanContext {
	t.Helper()
	tid, err := trace.TraceIDFromHex(traceID)
	if err != nil {
		t.Fatalf("TraceIDFromHex(%q): %v", traceID, err)
	}
	sid, err := trace.SpanIDFromHex(spanID)
	if err != nil {
		t.Fatalf("SpanIDFromHex(%q): %v", spanID, err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
	})
}

func TestSpanFromReadOnlyFields(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)

	stub := tracetest.SpanStub{
		Name:        "openai.chat.completion",
		SpanContext: makeSpanContext(t, testTraceIDHex, testSpanIDHex),
		Parent:      makeSpanContext(t, testTraceIDHex, testParentIDHex),
		SpanKind:    trace.SpanKindClient,
		StartTime:   start,
		EndTime:     end,
		Attributes: []attribute.KeyValue{
			attribute.String("llm.provider", "openai"),
			attribute.Bool("cached", true),
			attribute.Int("llm.usage.total_tokens", 120),
			attribute.Float64("llm.cost_usd", 0.0031),
			attribute.StringSlice("tags", []string{"a", "b"}),
		},
		Events: []sdktrace.Event{{
			Name: "retry",
			Time: start.Add(time.Second),
			Attributes: []attribute.KeyValue{
				attribute.Int("attempt", 2),
			},
		}},
		Status: sdktrace.Status{Code: codes.Error, Description: "rate limited"},
	}

	span := spanFromReadOnly(stub.Snapshot())

	if span.TraceID != testTraceIDHex {
		t.Errorf("TraceID = %s, want %s", span.TraceID, testTraceIDHex)
	}
	if span.SpanID != testSpanIDHex {
		t.Errorf("SpanID = %s, want %s", span.SpanID, testSpanIDHex)
	}
	if span.ParentSpanID != testParentIDHex {
		t.Errorf("ParentSpanID = %s, want %s", span.ParentSpanID, testParentIDHex)
	}
	if span.Name != "openai.chat.completion" {
		t.Errorf("Name = %s", span.Name)
	}
	if span.Kind != telemetry.SpanKindExternal {
		t.Errorf("Kind = %s, want external", span.Kind)
	}
	if !span.StartTime.Equal(start) || !span.EndTime.Equal(end) {
		t.Errorf("times = %v..%v", span.StartTime, span.EndTime)
	}
	if span.Status != telemetry.StatusError || span.StatusMessage != "rate limited" {
		t.Errorf("status = %s %q", span.Status, span.StatusMessage)
	}

	if got, _ := span.Attributes.String("llm.provider"); got != "openai" {
		t.Errorf("llm.provider = %q", got)
	}
	if got, _ := span.Attributes.Bool("cached"); !got {
		t.Error("cached attribute lost")
	}
	if got, _ := span.Attributes.Number("llm.usage.total_tokens"); got != 120 {
		t.Errorf("total_tokens = %v", got)
	}
	if got, _ := span.Attributes.Number("llm.cost_usd"); got != 0.0031 {
		t.Errorf("cost = %v", got)
	}
	if got, _ := span.Attributes.String("tags"); got != `["a","b"]` {
		t.Errorf("slice attribute = %q, want flattened text", got)
	}

	if len(span.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(span.Events))
	}
	ev := span.Events[0]
	if ev.Name != "retry" || !ev.Timestamp.Equal(start.Add(time.Second)) {
		t.Errorf("event = %+v", ev)
	}
	if got, _ := ev.Attributes.Number("attempt"); got != 2 {
		t.Errorf("event attempt = %v", got)
	}
}

func TestSpanFromReadOnlyLiftsExecutionID(t *testing.T) {
	stub := tracetest.SpanStub{
		Name:        "workflow.execute",
		SpanContext: makeSpanContext(t, testTraceIDHex, testSpanIDHex),
		SpanKind:    trace.SpanKindInternal,
		StartTime:   time.Now(),
		EndTime:     time.Now(),
		Attributes: []attribute.KeyValue{
			attribute.String(executionIDKey, "run-42"),
			attribute.String("workflow.name", "deploy"),
		},
	}

	span := spanFromReadOnly(stub.Snapshot())

	if span.ExecutionID != "run-42" {
		t.Errorf("ExecutionID = %q, want run-42", span.ExecutionID)
	}
	if span.Attributes.Has(executionIDKey) {
		t.Error("execution ID left behind in attributes")
	}
	if got, _ := span.Attributes.String("workflow.name"); got != "deploy" {
		t.Errorf("workflow.name = %q", got)
	}
}

func TestSpanFromReadOnlyUnsetStatus(t *testing.T) {
	stub := tracetest.SpanStub{
		Name:        "step.exec",
		SpanContext: makeSpanContext(t, testTraceIDHex, testSpanIDHex),
		SpanKind:    trace.SpanKindInternal,
		StartTime:   time.Now(),
		EndTime:     time.Now(),
	}

	span := spanFromReadOnly(stub.Snapshot())

	if span.Status != "" {
		t.Errorf("Status = %q, want empty for unset", span.Status)
	}
	if span.Kind != telemetry.SpanKindInternal {
		t.Errorf("Kind = %s, want internal", span.Kind)
	}
	if span.ParentSpanID != "" {
		t.Errorf("ParentSpanID = %q, want empty", span.ParentSpanID)
	}
	if span.Attributes != nil {
		t.Errorf("Attributes = %v, want nil", span.Attributes)
	}
}

func TestExporterDeliversToDaemon(t *testing.T) {
	c, eng := newTestDaemon(t)

	exporter := NewExporter(c, ExporterOptions{})
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer provider.Shutdown(context.Background())

	tracer := provider.Tracer("test")
	_, span := tracer.Start(context.Background(), "openai.chat.completion",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", "openai"),
			attribute.String("llm.model", "gpt-4"),
			attribute.Int("llm.usage.total_tokens", 120),
			attribute.String(executionIDKey, "e1"),
		),
	)
	traceID := span.SpanContext().TraceID().String()
	span.End()

	tr, err := eng.GetTrace(context.Background(), traceID)
	if err != nil {
		t.Fatalf("GetTrace after export: %v", err)
	}
	if len(tr.Spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(tr.Spans))
	}
	got := tr.Spans[0]
	if got.Kind != telemetry.SpanKindExternal {
		t.Errorf("Kind = %s, want external", got.Kind)
	}
	if got.ExecutionID != "e1" {
		t.Errorf("ExecutionID = %q, want e1", got.ExecutionID)
	}
	if got.Tokens() != 120 {
		t.Errorf("tokens = %d, want classifier-derived 120", got.Tokens())
	}
}

func TestExporterToleratesDeadDaemon(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	exporter := NewExporter(c, ExporterOptions{})

	stub := tracetest.SpanStub{
		Name:        "step.exec",
		SpanContext: makeSpanContext(t, testTraceIDHex, testSpanIDHex),
		StartTime:   time.Now(),
		EndTime:     time.Now(),
	}
	if err := exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}); err != nil {
		t.Errorf("ExportSpans = %v, want nil even when the daemon is down", err)
	}
	if err := exporter.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown = %v", err)
	}
}
