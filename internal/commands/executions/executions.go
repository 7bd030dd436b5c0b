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

package executions

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/wefthq/weft/internal/cli/format"
	"github.com/wefthq/weft/internal/commands/shared"
)

// NewExecutionsCommand creates the executions command tree
func NewExecutionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "Inspect workflow executions",
	}

	showCmd := &cobra.Command{
		Use:   "show <execution-id>",
		Short: "Show the summary of one workflow execution",
		Long: `Display the wide event for one execution: what ran, how long it took,
and what it cost, without walking the span tree.`,
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	}
	cmd.AddCommand(showCmd)

	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	c, err := shared.NewClient()
	if err != nil {
		return err
	}

	summary, err := c.ExecutionSummary(cmd.Context(), args[0])
	if err != nil {
		return shared.WrapClientError("failed to fetch execution summary", err)
	}

	if shared.WantJSON() {
		return shared.PrintJSON(cmd, summary)
	}

	cmd.Printf("%s %s\n", shared.RenderLabel("Execution:"), summary.ExecutionID)
	if summary.Workflow != "" {
		cmd.Printf("%s %s\n", shared.RenderLabel("Workflow:"), format.Sanitize(summary.Workflow))
	}
	cmd.Printf("%s %s\n", shared.RenderLabel("Status:"), shared.StatusText(summary.Status))
	cmd.Printf("%s %s\n", shared.RenderLabel("Started:"), format.Time(summary.StartTime))
	cmd.Printf("%s %s\n", shared.RenderLabel("Duration:"), format.Millis(summary.DurationMS))
	cmd.Printf("%s %d\n", shared.RenderLabel("Spans:"), summary.SpanCount)
	cmd.Printf("%s %d\n", shared.RenderLabel("Model calls:"), summary.LLMCalls)
	cmd.Printf("%s %s\n", shared.RenderLabel("Tokens:"), format.Tokens(summary.TotalTokens))
	cmd.Printf("%s %s\n", shared.RenderLabel("Cost:"), format.Cost(summary.TotalCost))

	if len(summary.NodePath) > 0 {
		cmd.Printf("%s %s\n", shared.RenderLabel("Path:"), format.Sanitize(strings.Join(summary.NodePath, " > ")))
	}
	if summary.ErrorType != "" {
		cmd.Printf("%s %s\n", shared.RenderLabel("Error:"),
			shared.StatusError.Render(format.Sanitize(summary.ErrorType)))
		if summary.ErrorMessage != "" {
			cmd.Printf("%s %s\n", shared.RenderLabel("Detail:"), format.Sanitize(summary.ErrorMessage))
		}
	}

	return nil
}
