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

package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/wefthq/weft/pkg/telemetry"
)

// BatchError describes one rejected item of a batch ingest.
type BatchError struct {
	// Index is the item's position in the submitted batch.
	Index int `json:"index"`

	// Error is the rejection reason.
	Error string `json:"error"`
}

// BatchResult reports the outcome of a batch ingest. A batch succeeds
// as a whole even when individual items are rejected.
type BatchResult struct {
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
	Errors   []BatchError `json:"errors,omitempty"`
}

// TraceDetail is a trace with its full span list.
type TraceDetail struct {
	Summary telemetry.TraceSummary `json:"summary"`
	Spans   []*telemetry.Span      `json:"spans"`
}

// ListOptions narrows a trace listing.
type ListOptions struct {
	// Limit caps the number of returned summaries. 0 means the daemon's
	// default.
	Limit int

	// Since excludes traces that started before it.
	Since time.Time

	// Filter is an expression over summary fields, e.g.
	// `status == "error" && total_tokens > 1000`.
	Filter string
}

// RollupOptions narrows a provider/model rollup.
type RollupOptions struct {
	// Since and Until bound the window half-open: [Since, Until).
	Since time.Time
	Until time.Time

	// Provider and Model restrict the rows when non-empty.
	Provider string
	Model    string
}

// BudgetReport mirrors the daemon's budget check response.
type BudgetReport struct {
	Enabled     bool      `json:"enabled"`
	Status      string    `json:"status"`
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit,omitempty"`
	Remaining   int64     `json:"remaining"`
	Percentage  float64   `json:"percentage"`
	Period      string    `json:"period,omitempty"`
	PeriodStart time.Time `json:"period_start,omitzero"`

	ByModel    []telemetry.ProviderMetric `json:"by_model,omitempty"`
	ByWorkflow []telemetry.ProjectCost    `json:"by_workflow,omitempty"`
}

// Health is the daemon's health check response.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Stats         struct {
		ResidentTraces  int   `json:"resident_traces"`
		EvictedTraces   int64 `json:"evicted_traces"`
		LiveSubscribers int   `json:"live_subscribers"`
		LiveDropped     int64 `json:"live_dropped"`
	} `json:"stats"`
}

// Ingest submits one span and returns the merged result the daemon
// stored, with any classification fields filled in.
func (c *Client) Ingest(ctx context.Context, span *telemetry.Span) (*telemetry.Span, error) {
	var merged telemetry.Span
	if err := c.post(ctx, "/v1/spans", span, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// IngestBatch submits several spans in one request. Individual
// rejections are reported in the result rather than failing the call.
func (c *Client) IngestBatch(ctx context.Context, spans []*telemetry.Span) (BatchResult, error) {
	var result BatchResult
	if err := c.post(ctx, "/v1/spans", spans, &result); err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

// ListTraces returns trace summaries, most recent first.
func (c *Client) ListTraces(ctx context.Context, opts ListOptions) ([]telemetry.TraceSummary, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if !opts.Since.IsZero() {
		query.Set("since", opts.Since.Format(time.RFC3339))
	}
	if opts.Filter != "" {
		query.Set("filter", opts.Filter)
	}

	var resp struct {
		Traces []telemetry.TraceSummary `json:"traces"`
		Count  int                      `json:"count"`
	}
	if err := c.get(ctx, "/v1/traces", query, &resp); err != nil {
		return nil, err
	}
	return resp.Traces, nil
}

// GetTrace returns one trace's summary and spans.
func (c *Client) GetTrace(ctx context.Context, traceID string) (*TraceDetail, error) {
	var detail TraceDetail
	if err := c.get(ctx, "/v1/traces/"+url.PathEscape(traceID), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetTree returns one trace's span hierarchy.
func (c *Client) GetTree(ctx context.Context, traceID string) (*telemetry.TreeNode, error) {
	var resp struct {
		TraceID string              `json:"trace_id"`
		Tree    *telemetry.TreeNode `json:"tree"`
	}
	if err := c.get(ctx, "/v1/traces/"+url.PathEscape(traceID)+"/tree", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tree, nil
}

// Rollup returns aggregate model-call rows for the window.
func (c *Client) Rollup(ctx context.Context, opts RollupOptions) ([]telemetry.ProviderMetric, error) {
	query := windowQuery(opts.Since, opts.Until)
	if opts.Provider != "" {
		query.Set("provider", opts.Provider)
	}
	if opts.Model != "" {
		query.Set("model", opts.Model)
	}

	var resp struct {
		Rollups []telemetry.ProviderMetric `json:"rollups"`
		Window  telemetry.Window           `json:"window"`
	}
	if err := c.get(ctx, "/v1/rollups", query, &resp); err != nil {
		return nil, err
	}
	return resp.Rollups, nil
}

// CostByProject returns cost rows grouped by owning project.
func (c *Client) CostByProject(ctx context.Context, since, until time.Time) ([]telemetry.ProjectCost, error) {
	var resp struct {
		Projects []telemetry.ProjectCost `json:"projects"`
		Window   telemetry.Window        `json:"window"`
	}
	if err := c.get(ctx, "/v1/rollups/projects", windowQuery(since, until), &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// ExecutionSummary returns the wide event for one workflow execution.
func (c *Client) ExecutionSummary(ctx context.Context, executionID string) (telemetry.ExecutionSummary, error) {
	var summary telemetry.ExecutionSummary
	path := "/v1/executions/" + url.PathEscape(executionID) + "/summary"
	if err := c.get(ctx, path, nil, &summary); err != nil {
		return telemetry.ExecutionSummary{}, err
	}
	return summary, nil
}

// Budget returns the current budget standing.
func (c *Client) Budget(ctx context.Context) (BudgetReport, error) {
	var report BudgetReport
	if err := c.get(ctx, "/v1/budget", nil, &report); err != nil {
		return BudgetReport{}, err
	}
	return report, nil
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	if err := c.get(ctx, "/healthz", nil, &health); err != nil {
		return Health{}, err
	}
	return health, nil
}

func windowQuery(since, until time.Time) url.Values {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.Format(time.RFC3339))
	}
	if !until.IsZero() {
		query.Set("until", until.Format(time.RFC3339))
	}
	return query
}
