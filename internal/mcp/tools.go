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

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wefthq/weft/internal/rollup"
	"github.com/wefthq/weft/internal/store"
	"github.com/wefthq/weft/pkg/telemetry"
)

const rateLimitMessage = "Rate limit exceeded. Please try again later."

// jsonResponse marshals v as indented JSON text content.
func jsonResponse(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return textResponse(string(data)), nil
}

// parseTimeArg parses an optional RFC 3339 argument. Empty is the zero
// time.
func parseTimeArg(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %q: must be an RFC 3339 timestamp, e.g. 2025-06-15T00:00:00Z", name)
	}
	return t, nil
}

// handleListTraces implements the list_traces tool.
func (s *Server) handleListTraces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return errorResponse(rateLimitMessage), nil
	}

	limit := 20
	if args := request.GetArguments(); args != nil {
		if v, ok := args["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}
	}

	since, err := parseTimeArg("since", request.GetString("since", ""))
	if err != nil {
		return errorResponse(err.Error()), nil
	}

	filter := store.Filter{Limit: limit}
	if !since.IsZero() {
		filter.Since = &since
	}

	summaries, err := s.engine.ListTraces(ctx, filter)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to list traces: %v", err)), nil
	}

	return jsonResponse(map[string]any{
		"traces": summaries,
		"count":  len(summaries),
	})
}

// handleGetTrace implements the get_trace tool.
func (s *Server) handleGetTrace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return errorResponse(rateLimitMessage), nil
	}

	traceID, err := request.RequireString("trace_id")
	if err != nil {
		return errorResponse("Missing or invalid 'trace_id' argument"), nil
	}

	tr, err := s.engine.GetTrace(ctx, traceID)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to get trace: %v", err)), nil
	}

	result := map[string]any{
		"summary": tr.Summary(),
		"spans":   tr.Spans,
	}
	if request.GetBool("include_tree", false) {
		result["tree"] = tr.Tree()
	}
	return jsonResponse(result)
}

// handleGetRollup implements the get_rollup tool.
func (s *Server) handleGetRollup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return errorResponse(rateLimitMessage), nil
	}

	since, err := parseTimeArg("since", request.GetString("since", ""))
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	until, err := parseTimeArg("until", request.GetString("until", ""))
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	window := telemetry.Window{Since: since, Until: until}

	switch groupBy := request.GetString("group_by", "model"); groupBy {
	case "model":
		rows, err := s.engine.Rollup(ctx, window, rollup.Filter{
			Provider: request.GetString("provider", ""),
			Model:    request.GetString("model", ""),
		})
		if err != nil {
			return errorResponse(fmt.Sprintf("Failed to compute rollup: %v", err)), nil
		}
		return jsonResponse(map[string]any{"rollups": rows, "window": window})
	case "project":
		rows, err := s.engine.CostByProject(ctx, window)
		if err != nil {
			return errorResponse(fmt.Sprintf("Failed to compute rollup: %v", err)), nil
		}
		return jsonResponse(map[string]any{"projects": rows, "window": window})
	default:
		return errorResponse(fmt.Sprintf("Invalid group_by %q: must be 'model' or 'project'", groupBy)), nil
	}
}

// handleBudgetStatus implements the budget_status tool.
func (s *Server) handleBudgetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return errorResponse(rateLimitMessage), nil
	}

	report, err := s.engine.Budget(ctx)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to check budget: %v", err)), nil
	}
	return jsonResponse(report)
}
