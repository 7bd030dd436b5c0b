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

package main

import (
	"github.com/joho/godotenv"

	"github.com/wefthq/weft/internal/cli"
	"github.com/wefthq/weft/internal/commands/budget"
	"github.com/wefthq/weft/internal/commands/executions"
	"github.com/wefthq/weft/internal/commands/initcmd"
	"github.com/wefthq/weft/internal/commands/rollup"
	"github.com/wefthq/weft/internal/commands/traces"
	versioncmd "github.com/wefthq/weft/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Load .env if present so WEFT_ADDR can live next to the project.
	_ = godotenv.Load()

	// Set version information from build-time ldflags
	cli.SetVersion(version, commit, buildDate)

	// Create root command and add subcommands
	rootCmd := cli.NewRootCommand()

	// Query commands
	rootCmd.AddCommand(traces.NewTracesCommand())
	rootCmd.AddCommand(rollup.NewRollupCommand())
	rootCmd.AddCommand(executions.NewExecutionsCommand())
	rootCmd.AddCommand(budget.NewBudgetCommand())

	// Configuration
	rootCmd.AddCommand(initcmd.NewInitCommand())

	// Version command
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Custom help command with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
