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

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Cost sources recorded on classifications.
const (
	// CostSourceReported means the producer attached a cost attribute.
	CostSourceReported = "reported"

	// CostSourcePricingTable means the cost was estimated from token
	// counts and the pricing table.
	CostSourcePricingTable = "pricing_table"
)

// PriceRule prices one provider/model family. Model is a glob pattern so a
// single rule covers dated snapshots ("gpt-4o*" matches "gpt-4o-2024-08-06").
type PriceRule struct {
	// Provider is the canonical provider name.
	Provider string `yaml:"provider" json:"provider"`

	// Model is a glob pattern matched against the reported model name.
	Model string `yaml:"model" json:"model"`

	// InputPerMillion is USD per million input tokens.
	InputPerMillion float64 `yaml:"input_per_million" json:"input_per_million"`

	// OutputPerMillion is USD per million output tokens.
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
}

// PriceTable is an ordered rule list; the first matching rule wins, so put
// specific patterns before catch-alls.
type PriceTable struct {
	Rules []PriceRule `yaml:"rules" json:"rules"`
}

// NewPriceTable builds a table from explicit rules.
func NewPriceTable(rules []PriceRule) *PriceTable {
	return &PriceTable{Rules: rules}
}

// DefaultPriceTable returns the built-in pricing, current as of late 2025.
// Costs derived from it are estimates for budgeting, never billing truth.
func DefaultPriceTable() *PriceTable {
	return NewPriceTable([]PriceRule{
		{Provider: "anthropic", Model: "claude-3-5-sonnet*", InputPerMillion: 3.00, OutputPerMillion: 15.00},
		{Provider: "anthropic", Model: "claude-3-5-haiku*", InputPerMillion: 1.00, OutputPerMillion: 5.00},
		{Provider: "anthropic", Model: "claude-3-opus*", InputPerMillion: 15.00, OutputPerMillion: 75.00},
		{Provider: "anthropic", Model: "claude-3-haiku*", InputPerMillion: 0.25, OutputPerMillion: 1.25},
		{Provider: "anthropic", Model: "claude*", InputPerMillion: 3.00, OutputPerMillion: 15.00},
		{Provider: "openai", Model: "gpt-4o-mini*", InputPerMillion: 0.15, OutputPerMillion: 0.60},
		{Provider: "openai", Model: "gpt-4o*", InputPerMillion: 2.50, OutputPerMillion: 10.00},
		{Provider: "openai", Model: "gpt-4-turbo*", InputPerMillion: 10.00, OutputPerMillion: 30.00},
		{Provider: "openai", Model: "gpt-4*", InputPerMillion: 30.00, OutputPerMillion: 60.00},
		{Provider: "openai", Model: "gpt-3.5-turbo*", InputPerMillion: 0.50, OutputPerMillion: 1.50},
		{Provider: "openai", Model: "o1*", InputPerMillion: 15.00, OutputPerMillion: 60.00},
		{Provider: "google", Model: "gemini-1.5-pro*", InputPerMillion: 1.25, OutputPerMillion: 5.00},
		{Provider: "google", Model: "gemini-1.5-flash*", InputPerMillion: 0.075, OutputPerMillion: 0.30},
		{Provider: "google", Model: "gemini*", InputPerMillion: 1.25, OutputPerMillion: 5.00},
	})
}

// match returns the first rule covering the provider/model pair, or nil.
func (t *PriceTable) match(provider, model string) *PriceRule {
	if t == nil || provider == "" || model == "" {
		return nil
	}
	for i := range t.Rules {
		rule := &t.Rules[i]
		if rule.Provider != provider {
			continue
		}
		ok, err := doublestar.Match(rule.Model, model)
		if err != nil {
			// Malformed pattern in user config; skip the rule.
			continue
		}
		if ok {
			return rule
		}
	}
	return nil
}

// Estimate computes a USD cost from token counts. Directional counts give
// an exact table price; a bare total is split evenly between input and
// output pricing. ok is false when no rule matches or no tokens are known.
func (t *PriceTable) Estimate(provider, model string, input, output, total *int64) (cost float64, ok bool) {
	rule := t.match(provider, model)
	if rule == nil {
		return 0, false
	}

	if input != nil || output != nil {
		var in, out int64
		if input != nil {
			in = *input
		}
		if output != nil {
			out = *output
		}
		return float64(in)/1_000_000.0*rule.InputPerMillion +
			float64(out)/1_000_000.0*rule.OutputPerMillion, true
	}

	if total != nil && *total > 0 {
		blended := (rule.InputPerMillion + rule.OutputPerMillion) / 2
		return float64(*total) / 1_000_000.0 * blended, true
	}

	return 0, false
}
