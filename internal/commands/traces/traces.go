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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wefthq/weft/internal/cli/format"
	"github.com/wefthq/weft/internal/commands/shared"
	"github.com/wefthq/weft/pkg/client"
)

var (
	listLimit  int
	listSince  string
	listFilter string
)

// NewTracesCommand creates the traces command tree
func NewTracesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traces",
		Short: "List, inspect, and watch traces",
		Long: `Query the traces the daemon holds: recent trace summaries, a single
trace with its span tree, or the live feed of spans as they arrive.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent traces",
		Long: `List recent trace summaries, newest first.

Filter expressions see the summary fields (trace_id, name, status,
span_count, total_tokens, total_cost, duration_ms, open), e.g.:

  weft traces list --filter 'status == "error"'
  weft traces list --filter 'total_tokens > 10000 && !open'`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum traces to return (0 for all)")
	listCmd.Flags().StringVar(&listSince, "since", "", "Only traces started since (duration like 24h, or a timestamp)")
	listCmd.Flags().StringVar(&listFilter, "filter", "", "Filter expression over summary fields")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newWatchCommand())

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	since, err := shared.ParseTimeFlag("since", listSince)
	if err != nil {
		return err
	}

	c, err := shared.NewClient()
	if err != nil {
		return err
	}

	summaries, err := c.ListTraces(cmd.Context(), client.ListOptions{
		Limit:  listLimit,
		Since:  since,
		Filter: listFilter,
	})
	if err != nil {
		return shared.WrapClientError("failed to list traces", err)
	}

	if shared.WantJSON() {
		return shared.PrintJSON(cmd, summaries)
	}

	if len(summaries) == 0 {
		cmd.Println("No traces.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRACE ID\tNAME\tSTATUS\tSPANS\tDURATION\tTOKENS\tCOST\tSTARTED")
	for _, summary := range summaries {
		status := string(summary.Status)
		if summary.Open {
			status = "open"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			format.ShortID(summary.TraceID),
			format.Sanitize(summary.Name),
			status,
			summary.SpanCount,
			format.Millis(summary.DurationMS),
			format.Tokens(summary.TotalTokens),
			format.Cost(summary.TotalCost),
			format.Time(summary.StartTime),
		)
	}
	w.Flush()

	return nil
}
