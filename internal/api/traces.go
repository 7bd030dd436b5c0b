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
	"net/http"
	"strconv"

	"github.com/wefthq/weft/internal/store"
	"github.com/wefthq/weft/pkg/telemetry"
)

// handleListTraces handles GET /v1/traces?limit=&filter=&since=.
//
// A filter expression is evaluated per summary after the store query, so
// the limit applies to matching traces rather than scanned ones.
func (rt *Router) handleListTraces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q", raw))
			return
		}
		limit = n
	}

	since, err := parseTimeParam("since", q.Get("since"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	filter := store.Filter{}
	if !since.IsZero() {
		filter.Since = &since
	}

	expression := q.Get("filter")
	if expression == "" {
		filter.Limit = limit
	}

	summaries, err := rt.engine.ListTraces(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if expression != "" {
		matched := make([]telemetry.TraceSummary, 0, len(summaries))
		for _, summary := range summaries {
			ok, err := rt.filter.Match(expression, summary)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			if ok {
				matched = append(matched, summary)
			}
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
		summaries = matched
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"traces": summaries,
		"count":  len(summaries),
	})
}

// handleGetTrace handles GET /v1/traces/{id}.
func (rt *Router) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	tr, err := rt.engine.GetTrace(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary": tr.Summary(),
		"spans":   tr.Spans,
	})
}

// handleGetTree handles GET /v1/traces/{id}/tree.
func (rt *Router) handleGetTree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	tr, err := rt.engine.GetTrace(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trace_id": tr.TraceID,
		"tree":     tr.Tree(),
	})
}
