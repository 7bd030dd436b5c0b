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

package rollup

import (
	"context"

	"github.com/wefthq/weft/internal/store"
	"github.com/wefthq/weft/pkg/telemetry"
)

// Owner identifies who an execution belongs to. Both fields are opaque
// grouping keys; no authorization hangs off them.
type Owner struct {
	Project  string `json:"project"`
	Workflow string `json:"workflow"`
}

// Ownership resolves the owning project and workflow for an execution.
// The empty execution ID stands for spans that carry no execution at all;
// implementations choose how to bucket those.
type Ownership interface {
	Resolve(ctx context.Context, executionID string) (Owner, error)
}

// ownershipScanLimit bounds how many spans Resolve reads when deriving a
// workflow name. The root is the earliest span, so a small page is enough.
const ownershipScanLimit = 50

// StaticOwnership is the configuration-backed Ownership implementation.
// It names the workflow after the execution's earliest parentless span
// and maps workflow to project through a configured table, falling back
// to a default project when no rule matches.
type StaticOwnership struct {
	store          store.Store
	projects       map[string]string
	defaultProject string
}

// NewStaticOwnership creates a static resolver. projects maps workflow
// names to project names; defaultProject covers everything unmatched and
// defaults to "default" when empty.
func NewStaticOwnership(s store.Store, projects map[string]string, defaultProject string) *StaticOwnership {
	if defaultProject == "" {
		defaultProject = "default"
	}
	return &StaticOwnership{
		store:          s,
		projects:       projects,
		defaultProject: defaultProject,
	}
}

// Resolve implements Ownership.
func (o *StaticOwnership) Resolve(ctx context.Context, executionID string) (Owner, error) {
	owner := Owner{Project: o.defaultProject}
	if executionID == "" {
		return owner, nil
	}

	spans, err := o.store.QuerySpans(ctx, store.Filter{
		ExecutionID: executionID,
		Limit:       ownershipScanLimit,
	})
	if err != nil {
		return owner, err
	}

	owner.Workflow = workflowName(spans)
	if project, ok := o.projects[owner.Workflow]; ok {
		owner.Project = project
	}
	return owner, nil
}

// workflowName picks the execution's workflow: the earliest parentless
// span names it, the earliest span of any kind failing that. Callers pass
// spans already ordered by start time.
func workflowName(spans []*telemetry.Span) string {
	for _, span := range spans {
		if span.ParentSpanID == "" {
			return span.Name
		}
	}
	if len(spans) > 0 {
		return spans[0].Name
	}
	return ""
}
