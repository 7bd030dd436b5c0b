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

// Package rollup implements the weft rollup command: aggregated call,
// token, and cost metrics per provider/model or per project.
package rollup

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wefthq/weft/internal/cli/format"
	"github.com/wefthq/weft/internal/commands/shared"
	"github.com/wefthq/weft/pkg/client"
)

var (
	rollupSince     string
	rollupUntil     string
	rollupProvider  string
	rollupModel     string
	rollupByProject bool
)

// NewRollupCommand creates the rollup command
func NewRollupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Show aggregated token and cost metrics",
		Long: `Aggregate calls, tokens, and cost over a time window, grouped by
provider and model. With --by-project the grouping follows the daemon's
workflow-to-project ownership mapping instead.`,
		Args: cobra.NoArgs,
		RunE: runRollup,
	}

	cmd.Flags().StringVar(&rollupSince, "since", "", "Window start (duration like 24h, or a timestamp)")
	cmd.Flags().StringVar(&rollupUntil, "until", "", "Window end (duration like 1h, or a timestamp)")
	cmd.Flags().StringVar(&rollupProvider, "provider", "", "Only this provider")
	cmd.Flags().StringVar(&rollupModel, "model", "", "Only this model")
	cmd.Flags().BoolVar(&rollupByProject, "by-project", false, "Group by project/workflow instead of provider/model")

	return cmd
}

func runRollup(cmd *cobra.Command, args []string) error {
	since, err := shared.ParseTimeFlag("since", rollupSince)
	if err != nil {
		return err
	}
	until, err := shared.ParseTimeFlag("until", rollupUntil)
	if err != nil {
		return err
	}

	c, err := shared.NewClient()
	if err != nil {
		return err
	}

	if rollupByProject {
		rows, err := c.CostByProject(cmd.Context(), since, until)
		if err != nil {
			return shared.WrapClientError("failed to fetch project rollup", err)
		}
		if shared.WantJSON() {
			return shared.PrintJSON(cmd, rows)
		}
		if len(rows) == 0 {
			cmd.Println("No model calls in window.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROJECT\tWORKFLOW\tCALLS\tTOKENS\tCOST")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				format.Sanitize(row.Project),
				orDash(format.Sanitize(row.Workflow)),
				row.CallCount,
				format.Tokens(row.TotalTokens),
				format.Cost(row.TotalCost),
			)
		}
		w.Flush()
		return nil
	}

	rows, err := c.Rollup(cmd.Context(), client.RollupOptions{
		Since:    since,
		Until:    until,
		Provider: rollupProvider,
		Model:    rollupModel,
	})
	if err != nil {
		return shared.WrapClientError("failed to fetch rollup", err)
	}
	if shared.WantJSON() {
		return shared.PrintJSON(cmd, rows)
	}
	if len(rows) == 0 {
		cmd.Println("No model calls in window.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tCALLS\tTOKENS\tCOST")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			format.Sanitize(row.Provider),
			orDash(format.Sanitize(row.Model)),
			row.CallCount,
			format.Tokens(row.TotalTokens),
			format.Cost(row.TotalCost),
		)
	}
	w.Flush()

	return nil
}

// orDash keeps table rows readable when a producer reported no value.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
