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
	"net/http"

	"github.com/wefthq/weft/internal/rollup"
	"github.com/wefthq/weft/pkg/telemetry"
)

// parseWindow reads since/until query parameters into a half-open window.
func parseWindow(r *http.Request) (telemetry.Window, error) {
	var window telemetry.Window

	since, err := parseTimeParam("since", r.URL.Query().Get("since"))
	if err != nil {
		return window, err
	}
	until, err := parseTimeParam("until", r.URL.Query().Get("until"))
	if err != nil {
		return window, err
	}

	window.Since = since
	window.Until = until
	return window, nil
}

// handleRollups handles GET /v1/rollups?since=&until=&provider=&model=.
func (rt *Router) handleRollups(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	filter := rollup.Filter{
		Provider: r.URL.Query().Get("provider"),
		Model:    r.URL.Query().Get("model"),
	}

	rows, err := rt.engine.Rollup(r.Context(), window, filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rollups": rows,
		"window":  window,
	})
}

// handleProjectRollups handles GET /v1/rollups/projects?since=&until=.
func (rt *Router) handleProjectRollups(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	rows, err := rt.engine.CostByProject(r.Context(), window)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projects": rows,
		"window":   window,
	})
}

// handleExecutionSummary handles GET /v1/executions/{id}/summary.
func (rt *Router) handleExecutionSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	summary, err := rt.engine.ExecutionSummary(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleBudget handles GET /v1/budget.
func (rt *Router) handleBudget(w http.ResponseWriter, r *http.Request) {
	report, err := rt.engine.Budget(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
