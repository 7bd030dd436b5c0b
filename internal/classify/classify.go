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

// Package classify decides what a span is. Given a span's name and
// attributes it produces a Classification: the span's kind (model call or
// internal step) and the normalized provider/model/token/cost fields.
//
// Classification is deterministic and never fails: spans the tables don't
// recognize degrade to internal with nothing extracted. Producers have
// shipped several attribute naming conventions over time, so every logical
// field is resolved through an ordered candidate-key list and the first
// present value wins.
package classify

import (
	"strconv"
	"strings"
	"sync"

	"github.com/wefthq/weft/pkg/telemetry"
)

// Kind is the classifier's verdict on a span.
type Kind string

const (
	// KindModelCall marks spans that represent a call to an external
	// model provider.
	KindModelCall Kind = "model_call"

	// KindInternal marks everything else, including spans the classifier
	// could not recognize.
	KindInternal Kind = "internal"
)

// Candidate attribute keys per logical field, most specific convention
// first. The tables are data: changing drift tolerance means editing a
// list, never touching control flow.
var (
	providerKeys = []string{
		"llm.provider",
		"gen_ai.system",
		"ai.provider",
	}

	modelKeys = []string{
		"llm.model",
		"gen_ai.request.model",
		"gen_ai.response.model",
		"model",
	}

	temperatureKeys = []string{
		"llm.temperature",
		"gen_ai.request.temperature",
	}

	totalTokenKeys = []string{
		"llm.usage.total_tokens",
		"gen_ai.usage.total_tokens",
		"traceloop.usage.total_tokens",
		"usage.total_tokens",
		"tokens.total",
	}

	inputTokenKeys = []string{
		"llm.usage.input_tokens",
		"gen_ai.usage.input_tokens",
		"tokens.prompt",
		"usage.prompt_tokens",
	}

	outputTokenKeys = []string{
		"llm.usage.output_tokens",
		"gen_ai.usage.output_tokens",
		"tokens.completion",
		"usage.completion_tokens",
	}

	costKeys = []string{
		"llm.usage.cost",
		"gen_ai.usage.cost",
		"traceloop.cost.usd",
		"usage.cost",
		"estimated_cost",
	}
)

// nameMarkers tag a span as a model call by name alone, for producers that
// attach no provider attributes at all.
var nameMarkers = []string{"chat", "completion", "llm"}

// Classification is the result of classifying one span.
type Classification struct {
	// Kind is model_call or internal.
	Kind Kind

	// Provider is the canonical provider name. Empty unless the span is a
	// model call with an identifiable provider.
	Provider string

	// Model is the model identifier as reported. Empty when unknown.
	Model string

	// Temperature is the sampling temperature, when reported.
	Temperature *float64

	// InputTokens and OutputTokens are the directional counts, when
	// reported separately.
	InputTokens  *int64
	OutputTokens *int64

	// TotalTokens is the combined count: the reported total when present,
	// otherwise the sum of the directional counts.
	TotalTokens *int64

	// EstimatedCost is the USD cost: the reported cost when present,
	// otherwise a pricing-table estimate. Nil when neither is available.
	EstimatedCost *float64

	// CostSource records where EstimatedCost came from: "reported",
	// "pricing_table", or empty when no cost is known.
	CostSource string
}

// IsModelCall reports whether the span was classified as a model call.
func (c Classification) IsModelCall() bool {
	return c.Kind == KindModelCall
}

// Classifier classifies spans against its current alias and pricing
// tables. Classify does no I/O; the mutex only guards table swaps from the
// config watcher.
type Classifier struct {
	mu      sync.RWMutex
	aliases map[string]string
	pricing *PriceTable
}

// New creates a Classifier with the built-in provider aliases and pricing.
func New() *Classifier {
	return &Classifier{
		aliases: DefaultAliases(),
		pricing: DefaultPriceTable(),
	}
}

// Update swaps the alias and pricing tables. Nil arguments keep the
// current table. Used by the config watcher on hot reload.
func (c *Classifier) Update(aliases map[string]string, pricing *PriceTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aliases != nil {
		c.aliases = aliases
	}
	if pricing != nil {
		c.pricing = pricing
	}
}

// Canonical collapses a reported provider string through the current
// alias table. Rollup filters run through this so a query for
// "azure_openai" matches rows grouped under "openai".
func (c *Classifier) Canonical(provider string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return canonicalize(provider, c.aliases)
}

// Classify inspects a span's name and attributes and returns its
// classification. It never fails; unrecognized spans come back as
// KindInternal with no fields extracted.
func (c *Classifier) Classify(span *telemetry.Span) Classification {
	c.mu.RLock()
	aliases := c.aliases
	pricing := c.pricing
	c.mu.RUnlock()

	attrs := span.Attributes
	out := Classification{Kind: KindInternal}

	provider, providerPresent := stringFrom(attrs, providerKeys)
	model, modelPresent := stringFrom(attrs, modelKeys)

	if providerPresent || modelPresent || nameMarked(span.Name) {
		out.Kind = KindModelCall
	}
	if out.Kind != KindModelCall {
		return out
	}

	out.Provider = canonicalize(provider, aliases)
	out.Model = model

	if temp, ok := numberFrom(attrs, temperatureKeys); ok {
		out.Temperature = &temp
	}

	var input, output int64
	if v, ok := numberFrom(attrs, inputTokenKeys); ok {
		input = int64(v)
		out.InputTokens = &input
	}
	if v, ok := numberFrom(attrs, outputTokenKeys); ok {
		output = int64(v)
		out.OutputTokens = &output
	}
	if v, ok := numberFrom(attrs, totalTokenKeys); ok {
		total := int64(v)
		out.TotalTokens = &total
	} else if out.InputTokens != nil || out.OutputTokens != nil {
		total := input + output
		out.TotalTokens = &total
	}

	if v, ok := numberFrom(attrs, costKeys); ok {
		out.EstimatedCost = &v
		out.CostSource = CostSourceReported
	} else if est, ok := pricing.Estimate(out.Provider, out.Model, out.InputTokens, out.OutputTokens, out.TotalTokens); ok {
		out.EstimatedCost = &est
		out.CostSource = CostSourcePricingTable
	}

	return out
}

// Apply copies the classification's derived fields onto the span, so the
// stored record carries tokens_used and estimated_cost alongside the raw
// attributes.
func Apply(span *telemetry.Span, cls Classification) {
	if cls.TotalTokens != nil {
		t := *cls.TotalTokens
		span.TokensUsed = &t
	}
	if cls.EstimatedCost != nil {
		c := *cls.EstimatedCost
		span.EstimatedCost = &c
	}
}

// nameMarked reports whether the span name alone identifies a model call.
func nameMarked(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range nameMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// stringFrom returns the first candidate key present with a usable string
// value. Numeric values stringify, matching producers that send model IDs
// as bare numbers.
func stringFrom(attrs telemetry.Attributes, keys []string) (string, bool) {
	for _, key := range keys {
		v, present := attrs[key]
		if !present || v.IsNull() {
			continue
		}
		if s := v.String(); s != "" {
			return s, true
		}
	}
	return "", false
}

// numberFrom returns the first candidate key present with a usable numeric
// value. Numeric strings parse, matching producers that quote their
// counts.
func numberFrom(attrs telemetry.Attributes, keys []string) (float64, bool) {
	for _, key := range keys {
		v, present := attrs[key]
		if !present {
			continue
		}
		if f, ok := v.Float64(); ok {
			return f, true
		}
		if v.Kind() == telemetry.KindString {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
