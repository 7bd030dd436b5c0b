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
	"testing"

	"github.com/wefthq/weft/pkg/telemetry"
)

func span(name string, attrs telemetry.Attributes) *telemetry.Span {
	return &telemetry.Span{
		TraceID:    "t1",
		SpanID:     "s1",
		Name:       name,
		Attributes: attrs,
	}
}

func TestClassifyModelCallFromAttributes(t *testing.T) {
	c := New()

	cls := c.Classify(span("summarize.exec", telemetry.Attributes{
		"llm.provider":            telemetry.StringValue("openai"),
		"llm.model":               telemetry.StringValue("gpt-4"),
		"llm.temperature":         telemetry.NumberValue(0.7),
		"llm.usage.input_tokens":  telemetry.NumberValue(20),
		"llm.usage.output_tokens": telemetry.NumberValue(10),
		"llm.usage.total_tokens":  telemetry.NumberValue(30),
	}))

	if !cls.IsModelCall() {
		t.Fatal("span with provider attributes not classified as model call")
	}
	if cls.Provider != "openai" || cls.Model != "gpt-4" {
		t.Errorf("provider/model = %q/%q", cls.Provider, cls.Model)
	}
	if cls.Temperature == nil || *cls.Temperature != 0.7 {
		t.Errorf("temperature = %v", cls.Temperature)
	}
	if cls.TotalTokens == nil || *cls.TotalTokens != 30 {
		t.Errorf("total tokens = %v", cls.TotalTokens)
	}
	if cls.InputTokens == nil || *cls.InputTokens != 20 {
		t.Errorf("input tokens = %v", cls.InputTokens)
	}
}

func TestClassifyCandidateKeyOrder(t *testing.T) {
	c := New()

	// Both conventions present: the more specific key must win.
	cls := c.Classify(span("step", telemetry.Attributes{
		"llm.provider":           telemetry.StringValue("openai"),
		"llm.usage.total_tokens": telemetry.NumberValue(100),
		"usage.total_tokens":     telemetry.NumberValue(999),
	}))

	if cls.TotalTokens == nil || *cls.TotalTokens != 100 {
		t.Errorf("total tokens = %v, want 100 from llm.usage.total_tokens", cls.TotalTokens)
	}
}

func TestClassifyConventionDrift(t *testing.T) {
	c := New()

	tests := []struct {
		name  string
		attrs telemetry.Attributes
	}{
		{
			"gen_ai convention",
			telemetry.Attributes{
				"gen_ai.system":              telemetry.StringValue("anthropic"),
				"gen_ai.request.model":       telemetry.StringValue("claude-3-5-sonnet-20241022"),
				"gen_ai.usage.input_tokens":  telemetry.NumberValue(15),
				"gen_ai.usage.output_tokens": telemetry.NumberValue(5),
			},
		},
		{
			"legacy tokens.* convention",
			telemetry.Attributes{
				"ai.provider":       telemetry.StringValue("anthropic"),
				"model":             telemetry.StringValue("claude-3-5-sonnet-20241022"),
				"tokens.prompt":     telemetry.NumberValue(15),
				"tokens.completion": telemetry.NumberValue(5),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := c.Classify(span("step", tt.attrs))
			if !cls.IsModelCall() {
				t.Fatal("not classified as model call")
			}
			if cls.Provider != "anthropic" {
				t.Errorf("provider = %q", cls.Provider)
			}
			if cls.TotalTokens == nil || *cls.TotalTokens != 20 {
				t.Errorf("total tokens = %v, want 20 summed from directional counts", cls.TotalTokens)
			}
		})
	}
}

func TestClassifyNameMarkers(t *testing.T) {
	c := New()

	for _, name := range []string{"openai.chat", "anthropic completion", "call_llm.exec", "ChatCompletion"} {
		cls := c.Classify(span(name, nil))
		if !cls.IsModelCall() {
			t.Errorf("name %q not tagged as model call", name)
		}
	}

	cls := c.Classify(span("fetch.prep", nil))
	if cls.IsModelCall() {
		t.Error("plain step tagged as model call")
	}
	if cls.Kind != KindInternal {
		t.Errorf("kind = %q, want internal", cls.Kind)
	}
}

func TestClassifyUnknownShapeDegrades(t *testing.T) {
	c := New()

	cls := c.Classify(span("transform.post", telemetry.Attributes{
		"some.vendor.key": telemetry.StringValue("opaque"),
		"retry_count":     telemetry.NumberValue(2),
	}))

	if cls.Kind != KindInternal {
		t.Errorf("kind = %q, want internal", cls.Kind)
	}
	if cls.Provider != "" || cls.Model != "" || cls.TotalTokens != nil || cls.EstimatedCost != nil {
		t.Errorf("internal span extracted fields: %+v", cls)
	}
}

func TestClassifyNumericStrings(t *testing.T) {
	c := New()

	cls := c.Classify(span("llm.call", telemetry.Attributes{
		"llm.provider":           telemetry.StringValue("openai"),
		"llm.usage.total_tokens": telemetry.StringValue(" 42 "),
	}))

	if cls.TotalTokens == nil || *cls.TotalTokens != 42 {
		t.Errorf("quoted token count not parsed: %v", cls.TotalTokens)
	}
}

func TestClassifyReportedCostWins(t *testing.T) {
	c := New()

	cls := c.Classify(span("llm.call", telemetry.Attributes{
		"llm.provider":            telemetry.StringValue("openai"),
		"llm.model":               telemetry.StringValue("gpt-4o"),
		"llm.usage.input_tokens":  telemetry.NumberValue(1000),
		"llm.usage.output_tokens": telemetry.NumberValue(1000),
		"traceloop.cost.usd":      telemetry.NumberValue(0.5),
	}))

	if cls.EstimatedCost == nil || *cls.EstimatedCost != 0.5 {
		t.Errorf("cost = %v, want reported 0.5", cls.EstimatedCost)
	}
	if cls.CostSource != CostSourceReported {
		t.Errorf("cost source = %q", cls.CostSource)
	}
}

func TestClassifyPricingTableFallback(t *testing.T) {
	c := New()

	cls := c.Classify(span("llm.call", telemetry.Attributes{
		"llm.provider":            telemetry.StringValue("openai"),
		"llm.model":               telemetry.StringValue("gpt-4o-2024-08-06"),
		"llm.usage.input_tokens":  telemetry.NumberValue(1_000_000),
		"llm.usage.output_tokens": telemetry.NumberValue(1_000_000),
	}))

	if cls.EstimatedCost == nil {
		t.Fatal("no cost estimated from pricing table")
	}
	if *cls.EstimatedCost != 12.50 {
		t.Errorf("cost = %v, want 12.50 (2.50 input + 10.00 output)", *cls.EstimatedCost)
	}
	if cls.CostSource != CostSourcePricingTable {
		t.Errorf("cost source = %q", cls.CostSource)
	}
}

func TestClassifyCanonicalization(t *testing.T) {
	c := New()

	cls := c.Classify(span("llm.call", telemetry.Attributes{
		"llm.provider": telemetry.StringValue("Azure_OpenAI"),
	}))
	if cls.Provider != "openai" {
		t.Errorf("provider = %q, want openai", cls.Provider)
	}

	c.Update(map[string]string{"my-gateway": "openai"}, nil)
	cls = c.Classify(span("llm.call", telemetry.Attributes{
		"llm.provider": telemetry.StringValue("my-gateway"),
	}))
	if cls.Provider != "openai" {
		t.Errorf("provider after Update = %q, want openai", cls.Provider)
	}
}

func TestClassifyDoesNotMutateSpan(t *testing.T) {
	c := New()

	s := span("llm.call", telemetry.Attributes{
		"llm.provider":           telemetry.StringValue("openai"),
		"llm.usage.total_tokens": telemetry.NumberValue(10),
	})
	_ = c.Classify(s)

	if s.TokensUsed != nil || s.EstimatedCost != nil {
		t.Error("Classify mutated the span; only Apply may do that")
	}

	cls := c.Classify(s)
	Apply(s, cls)
	if s.TokensUsed == nil || *s.TokensUsed != 10 {
		t.Errorf("Apply did not set tokens: %v", s.TokensUsed)
	}
}
