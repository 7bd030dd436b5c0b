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

package store

import (
	"context"
	"testing"
	"time"

	wefterrors "github.com/wefthq/weft/pkg/errors"
	"github.com/wefthq/weft/pkg/telemetry"
)

func TestMemoryStore_UpsertAndSummary(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	open := &telemetry.Span{
		TraceID: "t1", SpanID: "s1",
		Name: "pipeline.flow", StartTime: at(0),
		TokensUsed: i64(100),
	}
	if err := s.Append(ctx, open); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	closed := open.Clone()
	closed.EndTime = at(800)
	closed.TokensUsed = i64(300)
	if err := s.Append(ctx, closed); err != nil {
		t.Fatalf("failed to replace: %v", err)
	}

	spans, err := s.GetSpans(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get spans: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("upsert should keep one span, got %d", len(spans))
	}
	if spans[0].Tokens() != 300 {
		t.Errorf("expected 300 tokens after replacement, got %d", spans[0].Tokens())
	}

	traces, err := s.ListTraces(ctx, Filter{})
	if err != nil {
		t.Fatalf("failed to list traces: %v", err)
	}
	if len(traces) != 1 {
		t.Fatalf("expected 1 trace, got %d", len(traces))
	}
	sum := traces[0]
	if sum.TotalTokens != 300 {
		t.Errorf("replaced span still counted twice: total tokens = %d, want 300", sum.TotalTokens)
	}
	if sum.Open {
		t.Error("trace should be closed")
	}
	if sum.DurationMS != 800 {
		t.Errorf("expected duration 800ms, got %d", sum.DurationMS)
	}
	if sum.Name != "pipeline.flow" {
		t.Errorf("expected summary named from root, got %q", sum.Name)
	}
}

func TestMemoryStore_SummaryRootPick(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	// Two parentless spans: the earliest one names the trace
	for _, span := range []*telemetry.Span{
		{TraceID: "t1", SpanID: "late", Name: "late-root", StartTime: at(500), EndTime: at(600)},
		{TraceID: "t1", SpanID: "early", Name: "early-root", StartTime: at(100), EndTime: at(700)},
	} {
		if err := s.Append(ctx, span); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	traces, err := s.ListTraces(ctx, Filter{})
	if err != nil {
		t.Fatalf("failed to list traces: %v", err)
	}
	if traces[0].Name != "early-root" {
		t.Errorf("expected earliest parentless span to name the trace, got %q", traces[0].Name)
	}
}

func TestMemoryStore_GetSpansNotFound(t *testing.T) {
	s := NewMemory()

	_, err := s.GetSpans(context.Background(), "missing")
	if !wefterrors.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestMemoryStore_CloneIsolation(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	span := &telemetry.Span{
		TraceID: "t1", SpanID: "s1", Name: "op",
		StartTime: at(0), EndTime: at(10),
		Attributes: telemetry.Attributes{
			"key": telemetry.StringValue("original"),
		},
	}
	if err := s.Append(ctx, span); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	// Mutating the caller's span after append must not leak in
	span.Attributes["key"] = telemetry.StringValue("mutated")
	span.Name = "changed"

	got, err := s.GetSpans(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get spans: %v", err)
	}
	if got[0].Name != "op" {
		t.Errorf("stored span affected by caller mutation: name = %q", got[0].Name)
	}
	if v, _ := got[0].Attributes.String("key"); v != "original" {
		t.Errorf("stored attributes affected by caller mutation: %q", v)
	}

	// Mutating a returned span must not leak back either
	got[0].Attributes["key"] = telemetry.StringValue("reader-side")
	again, err := s.GetSpans(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to re-get spans: %v", err)
	}
	if v, _ := again[0].Attributes.String("key"); v != "original" {
		t.Errorf("store affected by reader mutation: %q", v)
	}
}

func TestMemoryStore_QuerySpansWindow(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for i, start := range []time.Time{at(1000), at(2000), at(3000)} {
		span := &telemetry.Span{
			TraceID:     "t1",
			SpanID:      []string{"s1", "s2", "s3"}[i],
			ExecutionID: "exec-1",
			Name:        "op",
			StartTime:   start,
			EndTime:     start.Add(time.Millisecond),
		}
		if err := s.Append(ctx, span); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	since, until := at(1000), at(3000)
	spans, err := s.QuerySpans(ctx, Filter{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans in [1000,3000), got %d", len(spans))
	}
	if spans[0].SpanID != "s1" || spans[1].SpanID != "s2" {
		t.Errorf("expected [s1 s2], got [%s %s]", spans[0].SpanID, spans[1].SpanID)
	}

	byExec, err := s.QuerySpans(ctx, Filter{ExecutionID: "exec-1", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("failed to paginate: %v", err)
	}
	if len(byExec) != 2 || byExec[0].SpanID != "s2" {
		t.Errorf("expected page [s2 s3], got %v", byExec)
	}
}

func TestMemoryStore_DeleteTracesOlderThan(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	old := &telemetry.Span{
		TraceID: "trace-old", SpanID: "s1", Name: "op",
		StartTime: time.Now().Add(-48 * time.Hour),
	}
	fresh := &telemetry.Span{
		TraceID: "trace-new", SpanID: "s1", Name: "op",
		StartTime: time.Now(),
	}
	if err := s.Append(ctx, old); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := s.Append(ctx, fresh); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	deleted, err := s.DeleteTracesOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 trace deleted, got %d", deleted)
	}
	if _, err := s.GetSpans(ctx, "trace-old"); !wefterrors.IsNotFound(err) {
		t.Errorf("expected trace-old gone, got %v", err)
	}
	if _, err := s.GetSpans(ctx, "trace-new"); err != nil {
		t.Errorf("trace-new should survive: %v", err)
	}
}
