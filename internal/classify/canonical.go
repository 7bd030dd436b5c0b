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

package classify

import "strings"

// DefaultAliases returns the built-in provider canonicalization table.
// Producers report near-duplicate provider strings ("azure_openai",
// "openai-chat"); rollups group by the canonical form. The table is policy,
// not structure: deployments override it wholesale through configuration.
func DefaultAliases() map[string]string {
	return map[string]string{
		"azure_openai":       "openai",
		"azure-openai":       "openai",
		"openai-chat":        "openai",
		"openai_chat":        "openai",
		"anthropic-messages": "anthropic",
		"claude":             "anthropic",
		"bedrock-anthropic":  "anthropic",
		"gemini":             "google",
		"google-genai":       "google",
		"google_genai":       "google",
		"vertex-ai":          "google",
		"vertexai":           "google",
	}
}

// canonicalize lowercases and trims a reported provider string, then
// collapses it through the alias table.
func canonicalize(provider string, aliases map[string]string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := aliases[p]; ok {
		return canonical
	}
	return p
}
