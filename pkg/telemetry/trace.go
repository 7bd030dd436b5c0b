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

package telemetry

import (
	"time"
)

// Trace is the derived view of all spans sharing a trace ID. It is never
// persisted; the assembler rebuilds it from spans and hands out immutable
// snapshots, so readers may hold a Trace across ingestion without seeing
// torn state.
type Trace struct {
	// TraceID identifies the trace.
	TraceID string `json:"trace_id"`

	// Spans holds every ingested span, sorted by start time with span ID
	// as the tie-break.
	Spans []*Span `json:"spans"`

	// RootSpanID is the span with no parent. Empty while no true root has
	// arrived; in that case the earliest span stands in as a provisional
	// root for display.
	RootSpanID string `json:"root_span_id,omitempty"`

	// StartTime is the minimum span start time.
	StartTime time.Time `json:"start_time"`

	// EndTime is the maximum span end time, using start time for spans
	// that are still open.
	EndTime time.Time `json:"end_time"`

	// DurationMS is EndTime minus StartTime in whole milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// TotalTokens sums the spans' derived token counts, nil counted as 0.
	TotalTokens int64 `json:"total_tokens"`

	// TotalCost sums the spans' derived cost estimates, nil counted as 0.
	TotalCost float64 `json:"total_cost"`

	// Open reports whether any constituent span still lacks an end time.
	Open bool `json:"open"`
}

// Summary condenses the trace to its list representation.
func (t *Trace) Summary() TraceSummary {
	s := TraceSummary{
		TraceID:     t.TraceID,
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
		DurationMS:  t.DurationMS,
		SpanCount:   len(t.Spans),
		TotalTokens: t.TotalTokens,
		TotalCost:   t.TotalCost,
		Open:        t.Open,
		Status:      StatusOK,
	}
	for _, sp := range t.Spans {
		if sp.SpanID == t.RootSpanID {
			s.Name = sp.Name
		}
		if sp.Errored() {
			s.Status = StatusError
		}
	}
	if s.Name == "" && len(t.Spans) > 0 {
		s.Name = t.Spans[0].Name
	}
	return s
}

// TraceSummary is the listing row for a trace: enough to render a table
// without shipping every span.
type TraceSummary struct {
	TraceID     string    `json:"trace_id"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	DurationMS  int64     `json:"duration_ms"`
	SpanCount   int       `json:"span_count"`
	TotalTokens int64     `json:"total_tokens"`
	TotalCost   float64   `json:"total_cost"`
	Open        bool      `json:"open"`
}

// TreeNode is one node of the rendered trace tree. The tree is always
// fully connected: spans whose declared parent is missing hang off a
// synthetic root node whose Span is nil.
type TreeNode struct {
	// Span is the node's span. Nil only for the synthetic root that
	// collects orphans while their parents are unresolved.
	Span *Span `json:"span"`

	// Children are ordered by start time, span ID tie-break.
	Children []*TreeNode `json:"children,omitempty"`
}

// Synthetic reports whether the node is the synthetic unresolved root.
func (n *TreeNode) Synthetic() bool {
	return n.Span == nil
}

// Count returns the number of nodes in the subtree rooted at n, including
// n itself.
func (n *TreeNode) Count() int {
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// Window is a half-open time interval [Since, Until). A zero Since means
// unbounded below; a zero Until means unbounded above. Half-open bounds
// keep rollups additive across partitioned windows.
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// Contains reports whether t falls within the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}
	return true
}

// IsZero reports whether the window is fully unbounded.
func (w Window) IsZero() bool {
	return w.Since.IsZero() && w.Until.IsZero()
}

// ProviderMetric is one rollup row: aggregate model-call activity for a
// (provider, model) pair over a query window.
type ProviderMetric struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	CallCount   int64   `json:"call_count"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

// ProjectCost is a rollup row grouped by the ownership collaborator's
// keys instead of provider/model.
type ProjectCost struct {
	Project     string  `json:"project"`
	Workflow    string  `json:"workflow"`
	CallCount   int64   `json:"call_count"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

// ExecutionSummary is the wide event for one workflow execution: a single
// denormalized record answering "what did this run do and what did it
// cost" without walking the span tree.
type ExecutionSummary struct {
	ExecutionID  string    `json:"execution_id"`
	Workflow     string    `json:"workflow,omitempty"`
	Status       Status    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	DurationMS   int64     `json:"duration_ms"`
	NodePath     []string  `json:"node_path"`
	SpanCount    int       `json:"span_count"`
	LLMCalls     int64     `json:"llm_calls"`
	TotalTokens  int64     `json:"total_tokens"`
	TotalCost    float64   `json:"total_cost"`
	ErrorType    string    `json:"error_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
