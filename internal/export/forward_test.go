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
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wefthq/weft/pkg/telemetry"
)

func forwardSpan(spanID string) *telemetry.Span {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &telemetry.Span{
		TraceID:   "trace-1",
		SpanID:    spanID,
		Name:      "op." + spanID,
		Status:    telemetry.StatusOK,
		StartTime: start,
		EndTime:   start.Add(time.Second),
	}
}

func TestForwarderExportsQueuedSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	f := NewForwarder(exporter, ForwarderConfig{Buffer: 16}, nil)
	f.Start()

	parent := forwardSpan("s1")
	child := forwardSpan("s2")
	child.ParentSpanID = "s1"
	f.Enqueue(parent)
	f.Enqueue(child)

	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	stubs := exporter.GetSpans()
	if len(stubs) != 2 {
		t.Fatalf("exported %d spans, want 2", len(stubs))
	}
	if stubs[0].SpanContext.TraceID() != stubs[1].SpanContext.TraceID() {
		t.Error("spans did not share a trace ID")
	}
	if stubs[1].Parent.SpanID() != stubs[0].SpanContext.SpanID() {
		t.Error("child parent link does not point at the parent span")
	}
	if f.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", f.Dropped())
	}
}

func TestForwarderDropsOldestWhenFull(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	f := NewForwarder(exporter, ForwarderConfig{Buffer: 2}, nil)

	// Fill the queue before the drain loop runs so eviction is forced.
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		f.Enqueue(forwardSpan(id))
	}
	if f.Dropped() != 3 {
		t.Fatalf("Dropped = %d, want 3", f.Dropped())
	}

	f.Start()
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	stubs := exporter.GetSpans()
	if len(stubs) != 2 {
		t.Fatalf("exported %d spans, want 2", len(stubs))
	}
	if stubs[0].Name != "op.s4" || stubs[1].Name != "op.s5" {
		t.Errorf("exported %q and %q, want the two newest spans", stubs[0].Name, stubs[1].Name)
	}
}

func TestForwarderStopWithoutStart(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	f := NewForwarder(exporter, ForwarderConfig{}, nil)

	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestForwarderEnqueueAfterStopIsNoop(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	f := NewForwarder(exporter, ForwarderConfig{}, nil)
	f.Start()
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	f.Enqueue(forwardSpan("late"))
	if got := len(exporter.GetSpans()); got != 0 {
		t.Errorf("exported %d spans after stop, want 0", got)
	}
}
