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

// Package store provides durable span storage. Spans are the only persisted
// unit: the trace summary rows kept alongside them are recomputed from the
// span set on every write, never accumulated, so a replacing upsert washes
// its old contribution out of everything derived.
package store

import (
	"context"
	"time"

	"github.com/wefthq/weft/pkg/telemetry"
)

// Store is the persistence interface shared by the sqlite, postgres, and
// memory backends. Failures are reported as *errors.StoreError with
// Retryable set when the same call may succeed later.
type Store interface {
	// Append upserts a span keyed by (trace_id, span_id). Re-appending a
	// span ID replaces the stored record wholesale.
	Append(ctx context.Context, span *telemetry.Span) error

	// GetSpans returns every span of a trace ordered by start time with
	// span ID as the tie-break. Returns *errors.NotFoundError when the
	// trace has no spans.
	GetSpans(ctx context.Context, traceID string) ([]*telemetry.Span, error)

	// ListTraces returns trace summaries matching the filter, newest
	// first.
	ListTraces(ctx context.Context, filter Filter) ([]telemetry.TraceSummary, error)

	// QuerySpans returns spans matching the filter ordered by start time.
	// The rollup and budget paths use this to recompute aggregates for a
	// window; Since is inclusive and Until exclusive, matching
	// telemetry.Window.
	QuerySpans(ctx context.Context, filter Filter) ([]*telemetry.Span, error)

	// DeleteTracesOlderThan deletes traces that started before the given
	// time and returns the number of traces deleted.
	DeleteTracesOlderThan(ctx context.Context, before time.Time) (int64, error)

	// Close releases the backend's resources.
	Close() error
}

// Filter narrows trace and span queries. Zero fields match everything.
type Filter struct {
	// Status filters traces by derived status ("ok" or "error").
	Status telemetry.Status

	// ExecutionID filters spans by their producing workflow execution.
	ExecutionID string

	// Since includes only records starting at or after this time.
	Since *time.Time

	// Until includes only records starting strictly before this time.
	Until *time.Time

	// Limit caps the number of results. Zero means no cap.
	Limit int

	// Offset skips the first N results.
	Offset int
}

// WindowFilter builds a Filter covering a query window.
func WindowFilter(w telemetry.Window) Filter {
	var f Filter
	if !w.Since.IsZero() {
		since := w.Since
		f.Since = &since
	}
	if !w.Until.IsZero() {
		until := w.Until
		f.Until = &until
	}
	return f
}
