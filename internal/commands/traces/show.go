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

package traces

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wefthq/weft/internal/cli/format"
	"github.com/wefthq/weft/internal/cli/timeline"
	"github.com/wefthq/weft/internal/commands/shared"
	"github.com/wefthq/weft/pkg/telemetry"
)

var (
	showEvents   bool
	showTimeline bool
)

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <trace-id>",
		Short: "Show one trace with its span tree",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	cmd.Flags().BoolVar(&showEvents, "events", false, "Include span events in the tree")
	cmd.Flags().BoolVar(&showTimeline, "timeline", false, "Render spans as a waterfall on the trace's time axis")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	traceID := args[0]

	c, err := shared.NewClient()
	if err != nil {
		return err
	}

	detail, err := c.GetTrace(cmd.Context(), traceID)
	if err != nil {
		return shared.WrapClientError("failed to fetch trace", err)
	}
	tree, err := c.GetTree(cmd.Context(), traceID)
	if err != nil {
		return shared.WrapClientError("failed to fetch trace tree", err)
	}

	if shared.WantJSON() {
		return shared.PrintJSON(cmd, struct {
			Summary telemetry.TraceSummary `json:"summary"`
			Spans   []*telemetry.Span      `json:"spans"`
			Tree    *telemetry.TreeNode    `json:"tree"`
		}{detail.Summary, detail.Spans, tree})
	}

	summary := detail.Summary
	cmd.Printf("%s %s\n", shared.RenderLabel("Trace:"), summary.TraceID)
	if summary.Name != "" {
		cmd.Printf("%s %s\n", shared.RenderLabel("Name:"), format.Sanitize(summary.Name))
	}
	cmd.Printf("%s %s\n", shared.RenderLabel("Status:"), showStatus(summary))
	cmd.Printf("%s %s\n", shared.RenderLabel("Started:"), format.Time(summary.StartTime))
	cmd.Printf("%s %s\n", shared.RenderLabel("Duration:"), format.Millis(summary.DurationMS))
	cmd.Printf("%s %d\n", shared.RenderLabel("Spans:"), summary.SpanCount)
	cmd.Printf("%s %s\n", shared.RenderLabel("Tokens:"), format.Tokens(summary.TotalTokens))
	cmd.Printf("%s %s\n\n", shared.RenderLabel("Cost:"), format.Cost(summary.TotalCost))

	if showTimeline {
		renderer, err := timeline.NewRenderer()
		if err != nil {
			return shared.NewUsageError("cannot render timeline", err)
		}
		out, err := renderer.Render(summary.TraceID, tree)
		if err != nil {
			return fmt.Errorf("failed to render timeline: %w", err)
		}
		cmd.Print(out)
		return nil
	}

	displayNode(cmd, tree, 0)

	return nil
}

func showStatus(summary telemetry.TraceSummary) string {
	if summary.Open {
		return shared.StatusText("")
	}
	return shared.StatusText(summary.Status)
}

// displayNode renders one tree node and its children with two-space
// indentation per level.
func displayNode(cmd *cobra.Command, node *telemetry.TreeNode, indent int) {
	if node == nil {
		return
	}

	if node.Synthetic() {
		// Orphans whose parents never arrived hang here.
		if indent == 0 && len(node.Children) > 0 {
			cmd.Println(shared.Muted.Render("(unresolved parents)"))
		}
		for _, child := range node.Children {
			displayNode(cmd, child, indent)
		}
		return
	}

	span := node.Span
	prefix := strings.Repeat("  ", indent)

	line := fmt.Sprintf("%s%s %s (%s)", prefix,
		shared.StatusSymbol(span.Status),
		format.Sanitize(span.Name),
		spanDuration(span),
	)
	if span.TokensUsed != nil {
		line += " " + shared.Muted.Render(modelNote(span))
	}
	cmd.Println(line)

	if span.Errored() && span.StatusMessage != "" {
		cmd.Printf("%s  %s\n", prefix, shared.StatusError.Render(format.Sanitize(span.StatusMessage)))
	}

	if showEvents {
		for _, event := range span.Events {
			cmd.Printf("%s  %s\n", prefix,
				shared.Muted.Render(fmt.Sprintf("[%s] %s", event.Timestamp.Format("15:04:05"), format.Sanitize(event.Name))))
		}
	}

	for _, child := range node.Children {
		displayNode(cmd, child, indent+1)
	}
}

func spanDuration(span *telemetry.Span) string {
	if span.IsOpen() {
		return "open"
	}
	return format.Duration(span.Duration())
}

// modelNote summarizes a model call: provider/model when reported, then
// tokens and cost.
func modelNote(span *telemetry.Span) string {
	var parts []string
	provider, _ := span.Attributes.String("llm.provider")
	model, _ := span.Attributes.String("llm.model")
	switch {
	case provider != "" && model != "":
		parts = append(parts, format.Sanitize(provider+"/"+model))
	case provider != "":
		parts = append(parts, format.Sanitize(provider))
	}
	parts = append(parts, format.Tokens(span.Tokens())+" tok")
	if span.EstimatedCost != nil {
		parts = append(parts, format.Cost(span.Cost()))
	}
	return "[" + strings.Join(parts, " · ") + "]"
}
