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

package budget

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wefthq/weft/internal/cli/format"
	"github.com/wefthq/weft/internal/commands/shared"
	"github.com/wefthq/weft/pkg/client"
)

var budgetBreakdown bool

// NewBudgetCommand creates the budget command
func NewBudgetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show token budget usage for the current period",
		Args:  cobra.NoArgs,
		RunE:  runBudget,
	}
	cmd.Flags().BoolVar(&budgetBreakdown, "breakdown", false, "Include per-model and per-workflow usage")
	return cmd
}

func runBudget(cmd *cobra.Command, args []string) error {
	c, err := shared.NewClient()
	if err != nil {
		return err
	}

	report, err := c.Budget(cmd.Context())
	if err != nil {
		return shared.WrapClientError("failed to fetch budget", err)
	}

	if shared.WantJSON() {
		return shared.PrintJSON(cmd, report)
	}

	if !report.Enabled {
		cmd.Println("Budget tracking is not enabled.")
		cmd.Println(shared.Muted.Render("Set budget.enabled and budget.token_limit in the daemon config."))
		return nil
	}

	cmd.Printf("%s %s\n", shared.RenderLabel("Status:"), budgetStatus(report.Status))
	cmd.Printf("%s %s", shared.RenderLabel("Used:"), format.Tokens(report.Used))
	if report.Limit > 0 {
		cmd.Printf(" of %s tokens (%.1f%%)", format.Tokens(report.Limit), report.Percentage)
	} else {
		cmd.Printf(" tokens")
	}
	cmd.Println()
	if report.Limit > 0 {
		cmd.Printf("%s %s tokens\n", shared.RenderLabel("Remaining:"), format.Tokens(report.Remaining))
	}
	if report.Period != "" {
		cmd.Printf("%s %s (since %s)\n", shared.RenderLabel("Period:"),
			report.Period, format.Time(report.PeriodStart))
	}

	if budgetBreakdown {
		printBreakdown(report)
	}

	return nil
}

func budgetStatus(status string) string {
	switch status {
	case "ok":
		return shared.StatusOK.Render("ok")
	case "warning":
		return shared.StatusWarn.Render("warning")
	case "exceeded":
		return shared.StatusError.Render("exceeded")
	default:
		return status
	}
}

func printBreakdown(report client.BudgetReport) {
	if len(report.ByModel) > 0 {
		fmt.Println()
		fmt.Println(shared.Header.Render("By model"))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCALLS\tTOKENS\tCOST")
		for _, row := range report.ByModel {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				format.Sanitize(row.Provider),
				format.Sanitize(row.Model),
				row.CallCount,
				format.Tokens(row.TotalTokens),
				format.Cost(row.TotalCost),
			)
		}
		w.Flush()
	}

	if len(report.ByWorkflow) > 0 {
		fmt.Println()
		fmt.Println(shared.Header.Render("By workflow"))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROJECT\tWORKFLOW\tCALLS\tTOKENS\tCOST")
		for _, row := range report.ByWorkflow {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				format.Sanitize(row.Project),
				format.Sanitize(row.Workflow),
				row.CallCount,
				format.Tokens(row.TotalTokens),
				format.Cost(row.TotalCost),
			)
		}
		w.Flush()
	}
}
