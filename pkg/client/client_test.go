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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wefthq/weft/internal/api"
	"github.com/wefthq/weft/internal/assemble"
	"github.com/wefthq/weft/internal/classify"
	"github.com/wefthq/weft/internal/engine"
	"github.com/wefthq/weft/internal/live"
	"github.com/wefthq/weft/internal/rollup"
	"github.com/wefthq/weft/internal/store"
	"github.com/wefthq/weft/pkg/telemetry"
)

// newTestDaemon spins up a real engine behind a real router so the
// client is exercised against the daemon's actual JSON contracts.
func newTestDaemon(t *testing.T) (*Client, *engine.Engine) {
	t.Helper()

	s := store.NewMemory()
	t.Cleanup(func() { s.Close() })
	classifier := classify.New()
	broadcaster := live.New(live.Config{Buffer: 8}, nil)
	t.Cleanup(broadcaster.Close)

	eng, err := engine.New(engine.Options{
		Store:      s,
		Assembler:  assemble.New(assemble.Config{}, nil),
		Classifier: classifier,
		Live:       broadcaster,
		Roller:     rollup.New(s, classifier, rollup.NewStaticOwnership(s, nil, ""), nil),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	router := api.NewRouter(eng, api.Config{Version: "test", MaxBatch: 100}, nil)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	c, err := New(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, eng
}

func testSpan(traceID, spanID string) *telemetry.Span {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &telemetry.Span{
		TraceID:   traceID,
		SpanID:    spanID,
		Name:      "step.exec",
		Status:    telemetry.StatusOK,
		StartTime: start,
		EndTime:   start.Add(time.Second),
	}
}

func llmSpan(traceID, spanID string, tokens float64) *telemetry.Span {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &telemetry.Span{
		TraceID:   traceID,
		SpanID:    spanID,
		Name:      "openai.chat.completion",
		Kind:      telemetry.SpanKindExternal,
		Status:    telemetry.StatusOK,
		StartTime: start,
		EndTime:   start.Add(800 * time.Millisecond),
		Attributes: telemetry.Attributes{
			"llm.provider":           telemetry.StringValue("openai"),
			"llm.model":              telemetry.StringValue("gpt-4"),
			"llm.usage.total_tokens": telemetry.NumberValue(tokens),
		},
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{BaseURL: "ftp://example.com"}); err == nil {
		t.Error("New accepted a non-http URL")
	}
	if _, err := New(Options{BaseURL: "http://%zz"}); err == nil {
		t.Error("New accepted an unparseable URL")
	}
	if _, err := New(Options{RetryAttempts: -1}); err == nil {
		t.Error("New accepted negative retry attempts")
	}

	c, err := New(Options{})
	if err != nil {
		t.Fatalf("New with defaults: %v", err)
	}
	if got := c.baseURL.String(); got != DefaultBaseURL {
		t.Errorf("base URL = %s, want %s", got, DefaultBaseURL)
	}
}

func TestIngestReturnsClassifiedSpan(t *testing.T) {
	c, _ := newTestDaemon(t)
	ctx := context.Background()

	merged, err := c.Ingest(ctx, llmSpan("t1", "s1", 120))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if merged.TraceID != "t1" || merged.SpanID != "s1" {
		t.Errorf("merged span = %s/%s, want t1/s1", merged.TraceID, merged.SpanID)
	}
	if merged.Tokens() != 120 {
		t.Errorf("tokens = %d, want classifier-derived 120", merged.Tokens())
	}
}

func TestIngestBatchReportsRejections(t *testing.T) {
	c, _ := newTestDaemon(t)

	batch := []*telemetry.Span{
		testSpan("t1", "s1"),
		{TraceID: "t1"}, // missing span_id
		llmSpan("t1", "s3", 50),
	}
	result, err := c.IngestBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if result.Accepted != 2 || result.Rejected != 1 {
		t.Errorf("result = %d/%d, want 2 accepted 1 rejected", result.Accepted, result.Rejected)
	}
	if len(result.Errors) != 1 || result.Errors[0].Index != 1 {
		t.Errorf("errors = %+v, want index 1", result.Errors)
	}
}

func TestListTraces(t *testing.T) {
	c, _ := newTestDaemon(t)
	ctx := context.Background()

	if _, err := c.Ingest(ctx, testSpan("t1", "s1")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := c.Ingest(ctx, llmSpan("t2", "s1", 500)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	all, err := c.ListTraces(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListTraces: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d traces, want 2", len(all))
	}

	filtered, err := c.ListTraces(ctx, ListOptions{Filter: "total_tokens > 100"})
	if err != nil {
		t.Fatalf("ListTraces with filter: %v", err)
	}
	if len(filtered) != 1 || filtered[0].TraceID != "t2" {
		t.Errorf("filtered = %+v, want only t2", filtered)
	}

	var apiErr *APIError
	if _, err := c.ListTraces(ctx, ListOptions{Filter: "bogus > 1"}); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("bad filter error = %v, want 400 APIError", err)
	}
}

func TestGetTraceAndTree(t *testing.T) {
	c, _ := newTestDaemon(t)
	ctx := context.Background()

	root := testSpan("t1", "s1")
	child := llmSpan("t1", "s2", 120)
	child.ParentSpanID = "s1"
	if _, err := c.IngestBatch(ctx, []*telemetry.Span{root, child}); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}

	detail, err := c.GetTrace(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if detail.Summary.SpanCount != 2 || detail.Summary.TotalTokens != 120 {
		t.Errorf("summary = %+v", detail.Summary)
	}
	if len(detail.Spans) != 2 {
		t.Errorf("got %d spans, want 2", len(detail.Spans))
	}

	tree, err := c.GetTree(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if tree.Span == nil || tree.Span.SpanID != "s1" {
		t.Fatalf("tree root = %+v, want s1", tree.Span)
	}
	if len(tree.Children) != 1 || tree.Children[0].Span.SpanID != "s2" {
		t.Errorf("tree children = %+v, want s2", tree.Children)
	}
}

func TestGetTraceNotFound(t *testing.T) {
	c, _ := newTestDaemon(t)

	_, err := c.GetTrace(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if !apiErr.NotFound() {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
}

func TestRollupAndProjects(t *testing.T) {
	c, _ := newTestDaemon(t)
	ctx := context.Background()

	span := llmSpan("t1", "s1", 120)
	span.ExecutionID = "e1"
	if _, err := c.Ingest(ctx, span); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	rows, err := c.Rollup(ctx, RollupOptions{Provider: "openai"})
	if err != nil {
		t.Fatalf("Rollup: %v", err)
	}
	if len(rows) != 1 || rows[0].TotalTokens != 120 || rows[0].CallCount != 1 {
		t.Errorf("rollup rows = %+v", rows)
	}

	projects, err := c.CostByProject(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("CostByProject: %v", err)
	}
	var calls int64
	for _, row := range projects {
		calls += row.CallCount
	}
	if calls != 1 {
		t.Errorf("project call count = %d, want 1", calls)
	}
}

func TestExecutionSummary(t *testing.T) {
	c, _ := newTestDaemon(t)
	ctx := context.Background()

	span := llmSpan("t1", "s1", 120)
	span.ExecutionID = "e1"
	if _, err := c.Ingest(ctx, span); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	summary, err := c.ExecutionSummary(ctx, "e1")
	if err != nil {
		t.Fatalf("ExecutionSummary: %v", err)
	}
	if summary.ExecutionID != "e1" || summary.SpanCount != 1 {
		t.Errorf("summary = %+v", summary)
	}

	var apiErr *APIError
	if _, err := c.ExecutionSummary(ctx, "nope"); !errors.As(err, &apiErr) || !apiErr.NotFound() {
		t.Errorf("unknown execution error = %v, want 404 APIError", err)
	}
}

func TestBudgetAndHealth(t *testing.T) {
	c, _ := newTestDaemon(t)
	ctx := context.Background()

	report, err := c.Budget(ctx)
	if err != nil {
		t.Fatalf("Budget: %v", err)
	}
	if report.Enabled {
		t.Error("budget reported enabled without a tracker")
	}

	health, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Status != "ok" || health.Version != "test" {
		t.Errorf("health = %+v", health)
	}
}

func TestWatchLive(t *testing.T) {
	c, eng := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := c.WatchLive(ctx)
	if err != nil {
		t.Fatalf("WatchLive: %v", err)
	}
	defer stream.Close()

	waitFor(t, func() bool { return eng.Stats().LiveSubscribers == 1 })

	if _, err := eng.Ingest(context.Background(), testSpan("t1", "s1")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	type next struct {
		span *telemetry.Span
		err  error
	}
	got := make(chan next, 1)
	go func() {
		span, err := stream.Next()
		got <- next{span, err}
	}()

	select {
	case n := <-got:
		if n.err != nil {
			t.Fatalf("Next: %v", n.err)
		}
		if n.span.TraceID != "t1" || n.span.SpanID != "s1" {
			t.Errorf("span = %s/%s, want t1/s1", n.span.TraceID, n.span.SpanID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live span")
	}
}

func TestRetryOnTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok","version":"test","uptime_seconds":1,"stats":{}}`)
	}))
	defer server.Close()

	c, err := New(Options{BaseURL: server.URL, RetryAttempts: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	health, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health after retries: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("health = %+v", health)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := New(Options{BaseURL: server.URL, RetryAttempts: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Ingest(context.Background(), testSpan("t1", "s1")); err == nil {
		t.Fatal("Ingest succeeded against a failing server")
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1 (no POST retries)", calls.Load())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
