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

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/wefthq/weft/internal/cli/format"
	"github.com/wefthq/weft/internal/jq"
)

// PrintJSON renders v as indented JSON, applying the global --jq
// projection first when one is set. Terminal output is highlighted.
func PrintJSON(cmd *cobra.Command, v interface{}) error {
	out, err := project(cmd, v)
	if err != nil {
		return err
	}
	s, err := format.JSON(out, format.IsTTY())
	if err != nil {
		return err
	}
	cmd.Println(s)
	return nil
}

// PrintJSONLine renders v as one compact JSON line. Streaming commands
// use this so each event stays a single greppable record.
func PrintJSONLine(cmd *cobra.Command, v interface{}) error {
	out, err := project(cmd, v)
	if err != nil {
		return err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

func project(cmd *cobra.Command, v interface{}) (interface{}, error) {
	expr := GetJQ()
	if expr == "" {
		return v, nil
	}
	out, err := jq.Apply(cmd.Context(), expr, v)
	if err != nil {
		return nil, NewUsageError("jq projection failed", err)
	}
	return out, nil
}
