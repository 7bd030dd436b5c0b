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

// Package assemble maintains the hot trace cache: it groups ingested spans
// by trace ID, keeps per-trace rollups current incrementally, and serves
// consistent snapshots to readers.
//
// Locking is per trace. The registry lock covers only map lookup, insert,
// and eviction; all span mutation happens under the owning trace's lock,
// so concurrent ingestion into different traces never serializes.
package assemble

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wefthq/weft/pkg/telemetry"
)

// DefaultMaxTraces bounds the resident trace count when no capacity is
// configured.
const DefaultMaxTraces = 2048

// Config holds assembler settings.
type Config struct {
	// MaxTraces caps the number of resident traces. When a new trace
	// would exceed the cap, the oldest resident trace by start time is
	// evicted from the cache (never from durable storage).
	MaxTraces int
}

// Assembler is the in-memory trace registry.
type Assembler struct {
	mu      sync.RWMutex
	traces  map[string]*entry
	max     int
	logger  *slog.Logger
	evicted int64
}

// entry is one resident trace. All fields behind mu.
type entry struct {
	mu      sync.Mutex
	traceID string
	spans   map[string]*telemetry.Span

	// Running rollups. Minimum and maximum only ever widen: an upsert
	// that moves a span's times inward keeps the previously observed
	// bounds, which is what makes trace duration monotonic under
	// re-ingestion.
	startMin    time.Time
	endMax      time.Time
	totalTokens int64
	totalCost   float64
	openCount   int

	// rootID is the earliest parentless span, or "" while none arrived.
	rootID string

	// evicted marks an entry that was removed from the registry while a
	// concurrent ingester still held a pointer to it. The ingester
	// re-enters through the registry instead of writing into the orphan.
	evicted bool
}

// New creates an Assembler. A nil logger discards eviction logs.
func New(cfg Config, logger *slog.Logger) *Assembler {
	if cfg.MaxTraces <= 0 {
		cfg.MaxTraces = DefaultMaxTraces
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{
		traces: make(map[string]*entry),
		max:    cfg.MaxTraces,
		logger: logger,
	}
}

// Ingest upserts a span into its trace and returns the merged span as the
// trace now holds it. The assembler stores its own clone; the caller's
// span is never retained.
func (a *Assembler) Ingest(span *telemetry.Span) *telemetry.Span {
	for {
		e := a.entryFor(span.TraceID)
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		merged := e.upsert(span)
		e.mu.Unlock()
		return merged
	}
}

// GetTrace returns a snapshot of the trace, or nil when the trace is not
// resident. The snapshot is assembled under the trace lock and deep-copied,
// so it never tears against concurrent ingestion.
func (a *Assembler) GetTrace(traceID string) *telemetry.Trace {
	a.mu.RLock()
	e := a.traces[traceID]
	a.mu.RUnlock()
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted || len(e.spans) == 0 {
		return nil
	}
	return e.snapshot()
}

// ListRecent returns summaries of resident traces, newest first by trace
// start time. A non-positive limit returns all resident traces.
func (a *Assembler) ListRecent(limit int) []telemetry.TraceSummary {
	a.mu.RLock()
	entries := make([]*entry, 0, len(a.traces))
	for _, e := range a.traces {
		entries = append(entries, e)
	}
	a.mu.RUnlock()

	summaries := make([]telemetry.TraceSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.evicted && len(e.spans) > 0 {
			tr := e.snapshot()
			summaries = append(summaries, tr.Summary())
		}
		e.mu.Unlock()
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].StartTime.Equal(summaries[j].StartTime) {
			return summaries[i].StartTime.After(summaries[j].StartTime)
		}
		return summaries[i].TraceID < summaries[j].TraceID
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// Warm rebuilds a trace entry from spans loaded out of durable storage,
// so a cold read re-enters the hot path. Existing resident state for the
// trace is replaced.
func (a *Assembler) Warm(traceID string, spans []*telemetry.Span) *telemetry.Trace {
	if len(spans) == 0 {
		return nil
	}
	for {
		e := a.entryFor(traceID)
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		e.reset()
		for _, span := range spans {
			e.upsert(span)
		}
		tr := e.snapshot()
		e.mu.Unlock()
		return tr
	}
}

// Len returns the resident trace count.
func (a *Assembler) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.traces)
}

// EvictedTotal returns the number of traces evicted since start.
func (a *Assembler) EvictedTotal() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.evicted
}

// entryFor returns the resident entry for traceID, creating it (and
// evicting the oldest trace when over capacity) as needed.
func (a *Assembler) entryFor(traceID string) *entry {
	a.mu.RLock()
	e := a.traces[traceID]
	a.mu.RUnlock()
	if e != nil {
		return e
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if e = a.traces[traceID]; e != nil {
		return e
	}

	if len(a.traces) >= a.max {
		a.evictOldestLocked()
	}

	e = &entry{
		traceID: traceID,
		spans:   make(map[string]*telemetry.Span),
	}
	a.traces[traceID] = e
	return e
}

// evictOldestLocked removes the trace with the earliest start time.
// Caller holds the registry write lock.
func (a *Assembler) evictOldestLocked() {
	var victim *entry
	var victimStart time.Time

	for _, e := range a.traces {
		e.mu.Lock()
		start := e.startMin
		e.mu.Unlock()
		if victim == nil || start.Before(victimStart) {
			victim = e
			victimStart = start
		}
	}
	if victim == nil {
		return
	}

	victim.mu.Lock()
	victim.evicted = true
	victim.mu.Unlock()

	delete(a.traces, victim.traceID)
	a.evicted++
	a.logger.Debug("evicted trace from hot cache",
		slog.String("trace_id", victim.traceID),
		slog.Time("start_time", victimStart),
	)
}

// upsert merges a span into the entry and refreshes the running rollups.
// Caller holds the entry lock. Returns a clone of the merged span.
func (e *entry) upsert(span *telemetry.Span) *telemetry.Span {
	incoming := span.Clone()

	if old, exists := e.spans[incoming.SpanID]; exists {
		// Subtract the old span's rollup contributions before merging.
		e.totalTokens -= old.Tokens()
		e.totalCost -= old.Cost()
		if old.IsOpen() {
			e.openCount--
		}
		merge(old, incoming)
		incoming = old
	} else {
		e.spans[incoming.SpanID] = incoming
	}

	e.totalTokens += incoming.Tokens()
	e.totalCost += incoming.Cost()
	if incoming.IsOpen() {
		e.openCount++
	}

	if e.startMin.IsZero() || incoming.StartTime.Before(e.startMin) {
		e.startMin = incoming.StartTime
	}
	latest := incoming.EndTime
	if latest.IsZero() {
		latest = incoming.StartTime
	}
	if e.endMax.IsZero() || latest.After(e.endMax) {
		e.endMax = latest
	}

	e.refreshRoot(incoming)

	return incoming.Clone()
}

// merge folds an incoming record into the stored span. The newer record
// wins field by field, except that a retried open record never erases a
// completion already observed: end time, status, attributes, and events
// only move forward.
func merge(old, incoming *telemetry.Span) {
	if incoming.Name != "" {
		old.Name = incoming.Name
	}
	if incoming.Kind != "" {
		old.Kind = incoming.Kind
	}
	if incoming.ParentSpanID != "" {
		old.ParentSpanID = incoming.ParentSpanID
	}
	if incoming.ExecutionID != "" {
		old.ExecutionID = incoming.ExecutionID
	}
	if !incoming.StartTime.IsZero() {
		old.StartTime = incoming.StartTime
	}
	if !incoming.EndTime.IsZero() {
		old.EndTime = incoming.EndTime
	}
	if incoming.Status != "" {
		old.Status = incoming.Status
	}
	if incoming.StatusMessage != "" {
		old.StatusMessage = incoming.StatusMessage
	}
	if len(incoming.Attributes) > 0 {
		old.Attributes = incoming.Attributes
	}
	if len(incoming.Events) > 0 {
		old.Events = incoming.Events
	}
	if incoming.TokensUsed != nil {
		old.TokensUsed = incoming.TokensUsed
	}
	if incoming.EstimatedCost != nil {
		old.EstimatedCost = incoming.EstimatedCost
	}
}

// refreshRoot keeps rootID pointing at the earliest parentless span.
// Caller holds the entry lock.
func (e *entry) refreshRoot(span *telemetry.Span) {
	if span.ParentSpanID == "" {
		if e.rootID == "" {
			e.rootID = span.SpanID
			return
		}
		current := e.spans[e.rootID]
		if current == nil || spanBefore(span, current) {
			e.rootID = span.SpanID
		}
		return
	}
	if span.SpanID == e.rootID {
		// A later record gave the old root a parent; rescan. This is the
		// one non-O(1) path and only runs on that rare update.
		e.rootID = ""
		for _, s := range e.spans {
			if s.ParentSpanID != "" {
				continue
			}
			if e.rootID == "" || spanBefore(s, e.spans[e.rootID]) {
				e.rootID = s.SpanID
			}
		}
	}
}

// reset clears the entry for a rebuild from storage. Caller holds the
// entry lock.
func (e *entry) reset() {
	e.spans = make(map[string]*telemetry.Span)
	e.startMin = time.Time{}
	e.endMax = time.Time{}
	e.totalTokens = 0
	e.totalCost = 0
	e.openCount = 0
	e.rootID = ""
}

// snapshot assembles the public trace view. Caller holds the entry lock.
func (e *entry) snapshot() *telemetry.Trace {
	spans := make([]*telemetry.Span, 0, len(e.spans))
	for _, s := range e.spans {
		spans = append(spans, s.Clone())
	}
	sort.Slice(spans, func(i, j int) bool {
		return spanBefore(spans[i], spans[j])
	})

	rootID := e.rootID
	if rootID == "" && len(spans) > 0 {
		// No true root yet; the earliest span stands in.
		rootID = spans[0].SpanID
	}

	tr := &telemetry.Trace{
		TraceID:     e.traceID,
		Spans:       spans,
		RootSpanID:  rootID,
		StartTime:   e.startMin,
		EndTime:     e.endMax,
		TotalTokens: e.totalTokens,
		TotalCost:   e.totalCost,
		Open:        e.openCount > 0,
	}
	tr.DurationMS = tr.EndTime.Sub(tr.StartTime).Milliseconds()
	return tr
}

// spanBefore orders spans by start time with span ID as the deterministic
// tie-break.
func spanBefore(a, b *telemetry.Span) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	return a.SpanID < b.SpanID
}
