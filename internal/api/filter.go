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

package api

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	wefterrors "github.com/wefthq/weft/pkg/errors"
	"github.com/wefthq/weft/pkg/telemetry"
)

// filterEnv is what a list-filter expression sees: one trace summary as
// flat fields. Compiling against the typed env rejects unknown field
// names instead of silently matching nothing.
type filterEnv struct {
	TraceID     string  `expr:"trace_id"`
	Name        string  `expr:"name"`
	Status      string  `expr:"status"`
	DurationMS  int64   `expr:"duration_ms"`
	SpanCount   int     `expr:"span_count"`
	TotalTokens int64   `expr:"total_tokens"`
	TotalCost   float64 `expr:"total_cost"`
	Open        bool    `expr:"open"`
}

// traceFilter evaluates list-filter expressions against trace summaries.
// Compiled programs are cached so repeated polls with the same filter
// don't recompile.
type traceFilter struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newTraceFilter() *traceFilter {
	return &traceFilter{cache: make(map[string]*vm.Program)}
}

// Match reports whether the summary satisfies the expression. An empty
// expression matches everything.
func (f *traceFilter) Match(expression string, summary telemetry.TraceSummary) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := f.compile(expression)
	if err != nil {
		return false, &wefterrors.ValidationError{
			Field:      "filter",
			Message:    fmt.Sprintf("invalid filter expression: %v", err),
			Suggestion: `compare summary fields, e.g. total_tokens > 1000 && status == "error"`,
		}
	}

	result, err := expr.Run(program, filterEnv{
		TraceID:     summary.TraceID,
		Name:        summary.Name,
		Status:      string(summary.Status),
		DurationMS:  summary.DurationMS,
		SpanCount:   summary.SpanCount,
		TotalTokens: summary.TotalTokens,
		TotalCost:   summary.TotalCost,
		Open:        summary.Open,
	})
	if err != nil {
		return false, &wefterrors.ValidationError{
			Field:   "filter",
			Message: fmt.Sprintf("filter evaluation failed: %v", err),
		}
	}

	matched, ok := result.(bool)
	if !ok {
		return false, &wefterrors.ValidationError{
			Field:      "filter",
			Message:    fmt.Sprintf("filter must return a boolean, got %T", result),
			Suggestion: "use comparison operators (==, !=, <, >) or boolean functions",
		}
	}
	return matched, nil
}

// compile compiles an expression and caches the result.
func (f *traceFilter) compile(expression string) (*vm.Program, error) {
	f.mu.RLock()
	if prog, ok := f.cache[expression]; ok {
		f.mu.RUnlock()
		return prog, nil
	}
	f.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.Env(filterEnv{}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[expression] = prog
	f.mu.Unlock()

	return prog, nil
}

// cacheSize returns the number of cached expressions.
func (f *traceFilter) cacheSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}
