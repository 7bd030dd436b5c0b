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
	"time"

	"github.com/wefthq/weft/internal/store"
	wefterrors "github.com/wefthq/weft/pkg/errors"
	"github.com/wefthq/weft/pkg/telemetry"
)

// SummarizeExecution condenses all spans of one execution into a single
// wide event: workflow, outcome, node path, and aggregate cost, so "what
// did this run do" is one record instead of a tree walk.
func (r *Roller) SummarizeExecution(ctx context.Context, executionID string) (telemetry.ExecutionSummary, error) {
	spans, err := r.store.QuerySpans(ctx, store.Filter{ExecutionID: executionID})
	if err != nil {
		return telemetry.ExecutionSummary{}, err
	}
	if len(spans) == 0 {
		return telemetry.ExecutionSummary{}, &wefterrors.NotFoundError{Resource: "execution", ID: executionID}
	}

	sum := telemetry.ExecutionSummary{
		ExecutionID: executionID,
		Workflow:    workflowName(spans),
		Status:      telemetry.StatusOK,
		SpanCount:   len(spans),
		NodePath:    make([]string, 0, len(spans)),
	}

	var startMin, endMax time.Time
	for _, span := range spans {
		// Spans arrive ordered by start time, so the path is in order.
		sum.NodePath = append(sum.NodePath, span.Name)

		if startMin.IsZero() || span.StartTime.Before(startMin) {
			startMin = span.StartTime
		}
		end := span.EndTime
		if end.IsZero() {
			end = span.StartTime
		}
		if end.After(endMax) {
			endMax = end
		}

		cls := r.classifier.Classify(span)
		if cls.IsModelCall() {
			sum.LLMCalls++
			if cls.TotalTokens != nil {
				sum.TotalTokens += *cls.TotalTokens
			}
			if cls.EstimatedCost != nil {
				sum.TotalCost += *cls.EstimatedCost
			}
		}

		if span.Errored() && sum.Status != telemetry.StatusError {
			sum.Status = telemetry.StatusError
			sum.ErrorType, sum.ErrorMessage = exceptionDetails(span)
		}
	}

	sum.StartTime = startMin
	sum.EndTime = endMax
	sum.DurationMS = endMax.Sub(startMin).Milliseconds()

	return sum, nil
}

// exceptionDetails pulls error identity out of a failed span: the first
// "exception" event's type and message attributes, falling back to the
// span's status message.
func exceptionDetails(span *telemetry.Span) (errType, errMessage string) {
	for _, event := range span.Events {
		if event.Name != "exception" {
			continue
		}
		t, _ := event.Attributes.String("exception.type")
		m, _ := event.Attributes.String("exception.message")
		if t != "" || m != "" {
			return t, m
		}
	}
	return "", span.StatusMessage
}
