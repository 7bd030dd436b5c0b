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

// Package rollup recomputes aggregate views from stored spans. Nothing in
// here maintains running counters: every query rescans the spans in its
// window and classifies them afresh, so results always reflect the current
// alias and pricing tables, and replacing a span washes its old
// contribution out of every number.
package rollup

import (
	"context"
	"log/slog"
	"sort"

	"github.com/wefthq/weft/internal/classify"
	"github.com/wefthq/weft/internal/store"
	"github.com/wefthq/weft/pkg/telemetry"
)

// unknownLabel groups model calls whose provider or model could not be
// identified.
const unknownLabel = "unknown"

// Roller computes windowed rollups from the span store.
type Roller struct {
	store      store.Store
	classifier *classify.Classifier
	ownership  Ownership
	logger     *slog.Logger
}

// New creates a Roller. The ownership collaborator may be nil, in which
// case CostByProject groups everything under a single unknown project.
func New(s store.Store, c *classify.Classifier, o Ownership, logger *slog.Logger) *Roller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Roller{store: s, classifier: c, ownership: o, logger: logger}
}

// Filter narrows a rollup to one provider and/or model. Provider values
// are compared after canonicalization, so "azure_openai" matches rows
// grouped under "openai".
type Filter struct {
	Provider string
	Model    string
}

// Rollup aggregates model calls whose start time falls within the window,
// grouped by (provider, model). Rows come back sorted by provider then
// model. Half-open windows make adjacent rollups additive.
func (r *Roller) Rollup(ctx context.Context, window telemetry.Window, filter Filter) ([]telemetry.ProviderMetric, error) {
	spans, err := r.store.QuerySpans(ctx, store.WindowFilter(window))
	if err != nil {
		return nil, err
	}

	wantProvider := r.classifier.Canonical(filter.Provider)

	type key struct{ provider, model string }
	groups := make(map[key]*telemetry.ProviderMetric)

	for _, span := range spans {
		cls := r.classifier.Classify(span)
		if !cls.IsModelCall() {
			continue
		}

		provider, model := cls.Provider, cls.Model
		if provider == "" {
			provider = unknownLabel
		}
		if model == "" {
			model = unknownLabel
		}

		if wantProvider != "" && provider != wantProvider {
			continue
		}
		if filter.Model != "" && model != filter.Model {
			continue
		}

		k := key{provider, model}
		m, ok := groups[k]
		if !ok {
			m = &telemetry.ProviderMetric{Provider: provider, Model: model}
			groups[k] = m
		}
		m.CallCount++
		if cls.TotalTokens != nil {
			m.TotalTokens += *cls.TotalTokens
		}
		if cls.EstimatedCost != nil {
			m.TotalCost += *cls.EstimatedCost
		}
	}

	metrics := make([]telemetry.ProviderMetric, 0, len(groups))
	for _, m := range groups {
		metrics = append(metrics, *m)
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Provider == metrics[j].Provider {
			return metrics[i].Model < metrics[j].Model
		}
		return metrics[i].Provider < metrics[j].Provider
	})

	return metrics, nil
}

// CostByProject aggregates model calls within the window by owning
// project and workflow, resolved through the ownership collaborator.
// Spans without an execution are resolved under the empty execution ID,
// which the collaborator buckets as it sees fit.
func (r *Roller) CostByProject(ctx context.Context, window telemetry.Window) ([]telemetry.ProjectCost, error) {
	spans, err := r.store.QuerySpans(ctx, store.WindowFilter(window))
	if err != nil {
		return nil, err
	}

	// Group by execution first so each one is resolved once.
	byExecution := make(map[string][]*telemetry.Span)
	for _, span := range spans {
		byExecution[span.ExecutionID] = append(byExecution[span.ExecutionID], span)
	}

	type key struct{ project, workflow string }
	groups := make(map[key]*telemetry.ProjectCost)

	for executionID, execSpans := range byExecution {
		owner := r.resolve(ctx, executionID)

		k := key{owner.Project, owner.Workflow}
		c, ok := groups[k]
		if !ok {
			c = &telemetry.ProjectCost{Project: owner.Project, Workflow: owner.Workflow}
			groups[k] = c
		}

		for _, span := range execSpans {
			cls := r.classifier.Classify(span)
			if !cls.IsModelCall() {
				continue
			}
			c.CallCount++
			if cls.TotalTokens != nil {
				c.TotalTokens += *cls.TotalTokens
			}
			if cls.EstimatedCost != nil {
				c.TotalCost += *cls.EstimatedCost
			}
		}
	}

	costs := make([]telemetry.ProjectCost, 0, len(groups))
	for _, c := range groups {
		costs = append(costs, *c)
	}
	sort.Slice(costs, func(i, j int) bool {
		if costs[i].Project == costs[j].Project {
			return costs[i].Workflow < costs[j].Workflow
		}
		return costs[i].Project < costs[j].Project
	})

	return costs, nil
}

func (r *Roller) resolve(ctx context.Context, executionID string) Owner {
	if r.ownership == nil {
		return Owner{Project: unknownLabel}
	}
	owner, err := r.ownership.Resolve(ctx, executionID)
	if err != nil {
		r.logger.Warn("ownership resolution failed",
			"execution_id", executionID,
			"error", err,
		)
		return Owner{Project: unknownLabel}
	}
	if owner.Project == "" {
		owner.Project = unknownLabel
	}
	return owner
}
