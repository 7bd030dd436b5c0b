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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/wefthq/weft/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for weft
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weft",
		Short: "weft - LLM workflow trace aggregation",
		Long: `weft queries a running weftd daemon for aggregated LLM workflow
telemetry: traces and their span trees, live span streams, token and
cost rollups, execution summaries, and budget state.

The daemon address comes from --addr, the WEFT_ADDR environment
variable, or the default http://127.0.0.1:8787.

Run 'weft init' to generate a daemon configuration.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	// Get flag pointers from shared package
	addr, output, jq := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().StringVar(addr, "addr", "", "Daemon address (host:port or URL)")
	cmd.PersistentFlags().StringVarP(output, "output", "o", "table", "Output format: table or json")
	cmd.PersistentFlags().StringVar(jq, "jq", "", "Project JSON output through a jq expression (implies -o json)")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
