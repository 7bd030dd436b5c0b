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
	"sort"
	"sync"
	"time"

	wefterrors "github.com/wefthq/weft/pkg/errors"
	"github.com/wefthq/weft/pkg/telemetry"
)

// MemoryStore keeps spans in process memory. It backs the "memory"
// storage backend and the test suites; nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	traces map[string]map[string]*telemetry.Span
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		traces: make(map[string]map[string]*telemetry.Span),
	}
}

// Append upserts a span keyed by (trace_id, span_id).
func (s *MemoryStore) Append(_ context.Context, span *telemetry.Span) error {
	if err := checkSpan(span); err != nil {
		return &wefterrors.StoreError{Op: "append", Retryable: false, Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	spans, ok := s.traces[span.TraceID]
	if !ok {
		spans = make(map[string]*telemetry.Span)
		s.traces[span.TraceID] = spans
	}
	spans[span.SpanID] = span.Clone()

	return nil
}

// GetSpans retrieves all spans for a trace ordered by start time.
func (s *MemoryStore) GetSpans(_ context.Context, traceID string) ([]*telemetry.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.traces[traceID]
	if !ok || len(stored) == 0 {
		return nil, &wefterrors.NotFoundError{Resource: "trace", ID: traceID}
	}

	spans := make([]*telemetry.Span, 0, len(stored))
	for _, span := range stored {
		spans = append(spans, span.Clone())
	}
	sortSpans(spans)

	return spans, nil
}

// ListTraces lists trace summaries matching the filter, newest first.
func (s *MemoryStore) ListTraces(_ context.Context, filter Filter) ([]telemetry.TraceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]telemetry.TraceSummary, 0, len(s.traces))
	for traceID, stored := range s.traces {
		sum := summarize(traceID, stored)

		if filter.Status != "" && sum.Status != filter.Status {
			continue
		}
		if filter.Since != nil && sum.StartTime.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !sum.StartTime.Before(*filter.Until) {
			continue
		}

		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})

	return paginate(summaries, filter.Limit, filter.Offset), nil
}

// QuerySpans returns spans matching the filter ordered by start time.
func (s *MemoryStore) QuerySpans(_ context.Context, filter Filter) ([]*telemetry.Span, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var spans []*telemetry.Span
	for _, stored := range s.traces {
		for _, span := range stored {
			if filter.ExecutionID != "" && span.ExecutionID != filter.ExecutionID {
				continue
			}
			if filter.Since != nil && span.StartTime.Before(*filter.Since) {
				continue
			}
			if filter.Until != nil && !span.StartTime.Before(*filter.Until) {
				continue
			}
			spans = append(spans, span.Clone())
		}
	}
	sortSpans(spans)

	return paginate(spans, filter.Limit, filter.Offset), nil
}

// DeleteTracesOlderThan deletes traces that started before the given time.
func (s *MemoryStore) DeleteTracesOlderThan(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for traceID, stored := range s.traces {
		start := earliestStart(stored)
		if start.Before(before) {
			delete(s.traces, traceID)
			count++
		}
	}

	return count, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// summarize derives a trace summary from its span set, the same
// computation the SQL backends run as an aggregate query.
func summarize(traceID string, stored map[string]*telemetry.Span) telemetry.TraceSummary {
	sum := telemetry.TraceSummary{TraceID: traceID, Status: telemetry.StatusOK}

	var startMin, endMax time.Time
	var root, earliest *telemetry.Span

	for _, span := range stored {
		if startMin.IsZero() || span.StartTime.Before(startMin) {
			startMin = span.StartTime
		}
		end := span.EndTime
		if end.IsZero() {
			end = span.StartTime
			sum.Open = true
		}
		if end.After(endMax) {
			endMax = end
		}

		if span.ParentSpanID == "" && spanBefore(span, root) {
			root = span
		}
		if spanBefore(span, earliest) {
			earliest = span
		}

		if span.Errored() {
			sum.Status = telemetry.StatusError
		}
		sum.SpanCount++
		sum.TotalTokens += span.Tokens()
		sum.TotalCost += span.Cost()
	}

	if root != nil {
		sum.Name = root.Name
	} else if earliest != nil {
		sum.Name = earliest.Name
	}
	sum.StartTime = startMin
	sum.EndTime = endMax
	sum.DurationMS = endMax.Sub(startMin).Milliseconds()

	return sum
}

// spanBefore reports whether a should replace b as the earliest pick,
// using span ID as the tie-break.
func spanBefore(a, b *telemetry.Span) bool {
	if b == nil {
		return true
	}
	if a.StartTime.Equal(b.StartTime) {
		return a.SpanID < b.SpanID
	}
	return a.StartTime.Before(b.StartTime)
}

func earliestStart(stored map[string]*telemetry.Span) time.Time {
	var start time.Time
	for _, span := range stored {
		if start.IsZero() || span.StartTime.Before(start) {
			start = span.StartTime
		}
	}
	return start
}

func sortSpans(spans []*telemetry.Span) {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].StartTime.Equal(spans[j].StartTime) {
			return spans[i].SpanID < spans[j].SpanID
		}
		return spans[i].StartTime.Before(spans[j].StartTime)
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
