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

// Package telemetry defines the span and trace data model shared by the
// weft daemon, the producer SDK, and the CLI. Spans are the only unit that
// crosses the wire and the only unit that is persisted; traces, trees, and
// rollups are always derived from the span set.
package telemetry

import (
	"time"
)

// Span is the atomic telemetry record: one timed operation emitted by a
// running workflow. A span may arrive before it completes (EndTime zero)
// and may be re-ingested later with the same SpanID to record completion;
// SpanID is the upsert key within a trace.
type Span struct {
	// TraceID groups causally-related spans.
	TraceID string `json:"trace_id"`

	// SpanID uniquely identifies this span within its trace.
	SpanID string `json:"span_id"`

	// ParentSpanID is the SpanID of the parent span. Empty for root spans.
	// A non-empty parent that has not (yet) arrived makes this span an
	// orphan; orphans are tolerated, never rejected.
	ParentSpanID string `json:"parent_span_id,omitempty"`

	// ExecutionID links the span to the producing workflow run. Opaque to
	// the engine; used only as a grouping key.
	ExecutionID string `json:"execution_id,omitempty"`

	// Name is a free-text operation label, e.g. "fetch.exec" or
	// "openai.chat.completion".
	Name string `json:"name"`

	// Kind is the producer-declared span role.
	Kind SpanKind `json:"kind,omitempty"`

	// Status indicates the span's outcome.
	Status Status `json:"status,omitempty"`

	// StatusMessage carries additional context for error spans.
	StatusMessage string `json:"status_message,omitempty"`

	// StartTime is when the operation began.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the operation completed. Zero while the span is open.
	EndTime time.Time `json:"end_time,omitzero"`

	// Attributes is an open key/value map. Producers attach arbitrary,
	// provider-specific keys; the schema is deliberately not fixed.
	Attributes Attributes `json:"attributes,omitempty"`

	// Events are timestamped sub-records in insertion order.
	Events []Event `json:"events,omitempty"`

	// TokensUsed is the token count derived by the classifier from
	// Attributes. Nil when the span is not a model call. Never
	// authoritative.
	TokensUsed *int64 `json:"tokens_used,omitempty"`

	// EstimatedCost is the USD cost derived by the classifier from
	// Attributes or the pricing table. Nil when unknown. Never
	// authoritative.
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
}

// SpanKind is the producer-declared role of a span. The classifier may
// additionally tag a span as a model call; that tag is a classification
// result, not a SpanKind.
type SpanKind string

const (
	// SpanKindInternal represents work happening within the workflow.
	SpanKindInternal SpanKind = "internal"

	// SpanKindExternal represents a call that left the workflow process.
	SpanKindExternal SpanKind = "external"
)

// Status is the outcome of a span.
type Status string

const (
	// StatusOK indicates successful completion.
	StatusOK Status = "ok"

	// StatusError indicates the operation failed.
	StatusError Status = "error"
)

// Event is a timestamped occurrence within a span. Order is significant
// and preserved exactly as ingested.
type Event struct {
	// Name identifies the event type, e.g. "retry" or "exception".
	Name string `json:"name"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Attributes contains event-specific metadata.
	Attributes Attributes `json:"attributes,omitempty"`
}

// IsOpen reports whether the span is still in progress (no EndTime yet).
func (s *Span) IsOpen() bool {
	return s.EndTime.IsZero()
}

// Duration returns the span's execution time, or 0 while the span is open.
func (s *Span) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// DurationMS returns the span duration in whole milliseconds, or 0 while
// the span is open.
func (s *Span) DurationMS() int64 {
	return s.Duration().Milliseconds()
}

// Errored reports whether the span completed with an error status.
func (s *Span) Errored() bool {
	return s.Status == StatusError
}

// Tokens returns the derived token count, treating nil as 0.
func (s *Span) Tokens() int64 {
	if s.TokensUsed == nil {
		return 0
	}
	return *s.TokensUsed
}

// Cost returns the derived cost estimate, treating nil as 0.
func (s *Span) Cost() float64 {
	if s.EstimatedCost == nil {
		return 0
	}
	return *s.EstimatedCost
}

// Clone returns a deep copy of the span. The assembler hands clones to
// readers and subscribers so that later upserts never mutate data a
// consumer is holding.
func (s *Span) Clone() *Span {
	out := *s
	if s.Attributes != nil {
		out.Attributes = make(Attributes, len(s.Attributes))
		for k, v := range s.Attributes {
			out.Attributes[k] = v
		}
	}
	if s.Events != nil {
		out.Events = make([]Event, len(s.Events))
		for i, ev := range s.Events {
			out.Events[i] = ev
			if ev.Attributes != nil {
				out.Events[i].Attributes = make(Attributes, len(ev.Attributes))
				for k, v := range ev.Attributes {
					out.Events[i].Attributes[k] = v
				}
			}
		}
	}
	if s.TokensUsed != nil {
		t := *s.TokensUsed
		out.TokensUsed = &t
	}
	if s.EstimatedCost != nil {
		c := *s.EstimatedCost
		out.EstimatedCost = &c
	}
	return &out
}
