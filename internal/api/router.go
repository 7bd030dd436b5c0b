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

// Package api provides the HTTP API for the weft daemon.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wefthq/weft/internal/engine"
	"github.com/wefthq/weft/internal/log"
)

// Config holds configuration for the API router.
type Config struct {
	// Version is reported by the health endpoint.
	Version string

	// MaxBatch caps the number of spans accepted in one batch request.
	// Zero means no cap.
	MaxBatch int

	// Rate limits ingest requests per second. Zero disables limiting.
	Rate float64

	// Burst is the ingest rate limiter burst size.
	Burst int
}

// Router wraps an http.ServeMux with the weft API routes and middleware.
type Router struct {
	mux     *http.ServeMux
	engine  *engine.Engine
	config  Config
	limiter *rate.Limiter
	filter  *traceFilter
	started time.Time
	logger  *slog.Logger
}

// NewRouter creates a new HTTP router with all API endpoints.
func NewRouter(eng *engine.Engine, cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Router{
		mux:     http.NewServeMux(),
		engine:  eng,
		config:  cfg,
		filter:  newTraceFilter(),
		started: time.Now(),
		logger:  log.WithComponent(logger, "api"),
	}
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}

	// Register API v1 endpoints
	r.mux.HandleFunc("POST /v1/spans", r.handleIngest)
	r.mux.HandleFunc("GET /v1/traces", r.handleListTraces)
	r.mux.HandleFunc("GET /v1/traces/{id}", r.handleGetTrace)
	r.mux.HandleFunc("GET /v1/traces/{id}/tree", r.handleGetTree)
	r.mux.HandleFunc("GET /v1/live", r.handleLive)
	r.mux.HandleFunc("GET /v1/rollups", r.handleRollups)
	r.mux.HandleFunc("GET /v1/rollups/projects", r.handleProjectRollups)
	r.mux.HandleFunc("GET /v1/executions/{id}/summary", r.handleExecutionSummary)
	r.mux.HandleFunc("GET /v1/budget", r.handleBudget)

	r.mux.HandleFunc("GET /healthz", r.handleHealth)

	// Root endpoint for basic connectivity check
	r.mux.HandleFunc("GET /", r.handleRoot)

	return r
}

// SetMetricsHandler registers the Prometheus metrics handler.
func (rt *Router) SetMetricsHandler(handler http.Handler) {
	if handler != nil {
		rt.mux.Handle("GET /metrics", handler)
	}
}

// SetMCPHandler mounts the MCP StreamableHTTP transport. The transport
// speaks POST, GET and DELETE on the one endpoint, so no method pattern.
func (rt *Router) SetMCPHandler(handler http.Handler) {
	if handler != nil {
		rt.mux.Handle("/mcp", handler)
	}
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var handler http.Handler = rt.mux

	// Apply request logging middleware
	handler = rt.logRequests(handler)

	// Apply panic recovery last so it wraps everything
	handler = rt.recoverPanics(handler)

	handler.ServeHTTP(w, req)
}

// Mux returns the underlying ServeMux for registering additional routes.
func (rt *Router) Mux() *http.ServeMux {
	return rt.mux
}

// logRequests logs every completed request with its duration. The response
// writer is passed through untouched so SSE handlers keep http.Flusher.
func (rt *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		defer func() {
			rt.logger.Debug("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int64(log.DurationKey, time.Since(start).Milliseconds()),
			)
		}()
		next.ServeHTTP(w, req)
	})
}

// recoverPanics turns a handler panic into a 500 instead of tearing down
// the connection.
func (rt *Router) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				rt.logger.Error("handler panic",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.Any("panic", rec),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// handleRoot handles GET / for basic connectivity.
func (rt *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "weftd",
		"version": rt.config.Version,
	})
}

// handleHealth handles GET /healthz.
func (rt *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        rt.config.Version,
		"uptime_seconds": int64(time.Since(rt.started).Seconds()),
		"stats":          rt.engine.Stats(),
	})
}
