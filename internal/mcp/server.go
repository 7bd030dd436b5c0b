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

// Package mcp exposes weft's query surface as MCP tools, so agents can
// introspect the telemetry their own workflows produce. The daemon mounts
// the server on its HTTP listener via the StreamableHTTP transport.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/wefthq/weft/internal/engine"
	"github.com/wefthq/weft/internal/log"
)

// Config configures the MCP server.
type Config struct {
	// Name is the advertised server name (default: "weft").
	Name string

	// Version is the weft version.
	Version string

	// RequestsPerMinute rate-limits tool calls. Zero disables limiting.
	RequestsPerMinute int
}

// Server wraps the MCP server and provides weft query tools.
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
	name      string
	version   string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(eng *engine.Engine, cfg Config, logger *slog.Logger) *Server {
	if cfg.Name == "" {
		cfg.Name = "weft"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		mcpServer: server.NewMCPServer(cfg.Name, cfg.Version),
		engine:    eng,
		name:      cfg.Name,
		version:   cfg.Version,
		logger:    log.WithComponent(logger, "mcp"),
	}
	if cfg.RequestsPerMinute > 0 {
		perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
		s.limiter = rate.NewLimiter(perSecond, cfg.RequestsPerMinute)
	}

	s.registerTools()
	return s
}

// registerTools registers the weft query tools with the MCP server.
func (s *Server) registerTools() {
	// Tool: list_traces
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_traces",
		Description: "List recent workflow traces, newest first. Returns trace summaries with duration, span count, token and cost totals.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of traces to return (default: 20)",
				},
				"since": map[string]interface{}{
					"type":        "string",
					"description": "Only traces starting at or after this RFC 3339 timestamp",
				},
			},
		},
	}, s.handleListTraces)

	// Tool: get_trace
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_trace",
		Description: "Fetch one trace with its summary and every span. Set include_tree=true to also get the parent/child tree.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"trace_id": map[string]interface{}{
					"type":        "string",
					"description": "The trace identifier",
				},
				"include_tree": map[string]interface{}{
					"type":        "boolean",
					"description": "Include the span tree in the result (default: false)",
					"default":     false,
				},
			},
			Required: []string{"trace_id"},
		},
	}, s.handleGetTrace)

	// Tool: get_rollup
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_rollup",
		Description: "Aggregate model-call activity (calls, tokens, cost) over a time window, grouped by provider/model or by owning project.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"since": map[string]interface{}{
					"type":        "string",
					"description": "Window start, RFC 3339 (inclusive)",
				},
				"until": map[string]interface{}{
					"type":        "string",
					"description": "Window end, RFC 3339 (exclusive)",
				},
				"provider": map[string]interface{}{
					"type":        "string",
					"description": "Only this provider (aliases are canonicalized)",
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Only this model",
				},
				"group_by": map[string]interface{}{
					"type":        "string",
					"description": "Grouping: 'model' (default) or 'project'",
				},
			},
		},
	}, s.handleGetRollup)

	// Tool: budget_status
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "budget_status",
		Description: "Report token usage against the configured budget: status (ok, warning, exceeded), used, remaining, and per-model breakdown.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleBudgetStatus)
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// allow checks the shared tool-call rate limit.
func (s *Server) allow() bool {
	if s.limiter == nil || s.limiter.Allow() {
		return true
	}
	s.logger.Debug("tool call rate limited",
		slog.String("server", s.name),
	)
	return false
}

// errorResponse creates an error tool result.
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// textResponse creates a success tool result with text content.
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}
