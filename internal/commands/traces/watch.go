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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wefthq/weft/internal/cli/format"
	"github.com/wefthq/weft/internal/commands/shared"
	"github.com/wefthq/weft/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream spans live as the daemon ingests them",
		Long: `Subscribe to the daemon's live feed and print every span as it
arrives. Interrupt with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := shared.NewClient()
	if err != nil {
		return err
	}

	stream, err := c.WatchLive(ctx)
	if err != nil {
		return shared.WrapClientError("failed to open live stream", err)
	}
	defer stream.Close()

	asJSON := shared.WantJSON()

	var spinner *shared.Spinner
	if !asJSON {
		spinner = shared.NewSpinner()
		spinner.Start("Watching for spans")
	}

	for {
		span, err := stream.Next()
		if err != nil {
			if spinner != nil {
				spinner.Stop()
			}
			switch {
			case ctx.Err() != nil:
				// Interrupted by the user.
				return nil
			case errors.Is(err, io.EOF):
				if !asJSON {
					cmd.Println(shared.Muted.Render("stream closed by daemon"))
				}
				return nil
			default:
				return shared.WrapClientError("live stream failed", err)
			}
		}

		if asJSON {
			if err := shared.PrintJSONLine(cmd, span); err != nil {
				return err
			}
			continue
		}

		if spinner != nil {
			spinner.Stop()
			spinner = nil
		}
		cmd.Println(watchLine(span))
	}
}

// watchLine renders one streamed span: time, status, trace, name,
// duration, and the model-call note when present.
func watchLine(span *telemetry.Span) string {
	line := fmt.Sprintf("%s %s %s %s (%s)",
		shared.Muted.Render(span.StartTime.Format("15:04:05")),
		shared.StatusSymbol(span.Status),
		format.ShortID(span.TraceID),
		format.Sanitize(span.Name),
		spanDuration(span),
	)
	if span.TokensUsed != nil {
		line += " " + shared.Muted.Render(modelNote(span))
	}
	return line
}
