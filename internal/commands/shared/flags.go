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

package shared

// Global flag values - set by root command
var (
	addrFlag   string
	outputFlag string
	jqFlag     string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to flag variables for binding.
// Called by root command to register flags.
func RegisterFlagPointers() (addr, output, jq *string) {
	return &addrFlag, &outputFlag, &jqFlag
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetAddr returns the daemon address flag value. Empty means "resolve
// from the environment or the default".
func GetAddr() string {
	return addrFlag
}

// GetOutput returns the output format flag value ("table" or "json").
func GetOutput() string {
	return outputFlag
}

// GetJQ returns the jq projection expression, if any.
func GetJQ() string {
	return jqFlag
}

// WantJSON reports whether output should be JSON. A jq projection only
// makes sense over JSON, so --jq implies it.
func WantJSON() bool {
	return outputFlag == "json" || jqFlag != ""
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetOutputForTest sets the output format for testing purposes
func SetOutputForTest(output, jq string) {
	outputFlag = output
	jqFlag = jq
}
