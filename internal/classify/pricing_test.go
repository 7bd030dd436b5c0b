package classify

import (
	"testing"
)

func i64(n int64) *int64 { return &n }

func TestPriceTableRuleOrder(t *testing.T) {
	table := DefaultPriceTable()

	// gpt-4o-mini must hit the mini rule, not the broader gpt-4o* rule.
	cost, ok := table.Estimate("openai", "gpt-4o-mini-2024-07-18", i64(1_000_000), i64(0), nil)
	if !ok {
		t.Fatal("no rule matched gpt-4o-mini")
	}
	if cost != 0.15 {
		t.Errorf("cost = %v, want 0.15 from the mini rule", cost)
	}
}

func TestPriceTableGlobMatch(t *testing.T) {
	table := NewPriceTable([]PriceRule{
		{Provider: "anthropic", Model: "claude-3-5-*", InputPerMillion: 3, OutputPerMillion: 15},
	})

	if _, ok := table.Estimate("anthropic", "claude-3-5-sonnet-20241022", i64(1), nil, nil); !ok {
		t.Error("glob did not match dated model snapshot")
	}
	if _, ok := table.Estimate("anthropic", "claude-2", i64(1), nil, nil); ok {
		t.Error("glob matched unrelated model")
	}
	if _, ok := table.Estimate("openai", "claude-3-5-sonnet", i64(1), nil, nil); ok {
		t.Error("rule matched across providers")
	}
}

func TestPriceTableBlendedTotal(t *testing.T) {
	table := NewPriceTable([]PriceRule{
		{Provider: "openai", Model: "gpt-4", InputPerMillion: 30, OutputPerMillion: 60},
	})

	cost, ok := table.Estimate("openai", "gpt-4", nil, nil, i64(1_000_000))
	if !ok {
		t.Fatal("total-only estimate failed")
	}
	if cost != 45 {
		t.Errorf("blended cost = %v, want 45 (midpoint of 30 and 60)", cost)
	}
}

func TestPriceTableNoMatch(t *testing.T) {
	table := DefaultPriceTable()

	if _, ok := table.Estimate("acme", "weather-model-1", i64(100), nil, nil); ok {
		t.Error("estimate produced for unknown provider")
	}
	if _, ok := table.Estimate("openai", "gpt-4", nil, nil, nil); ok {
		t.Error("estimate produced with no token counts")
	}
}

func TestPriceTableSkipsMalformedPattern(t *testing.T) {
	table := NewPriceTable([]PriceRule{
		{Provider: "openai", Model: "gpt-[", InputPerMillion: 1, OutputPerMillion: 1},
		{Provider: "openai", Model: "gpt-*", InputPerMillion: 2, OutputPerMillion: 2},
	})

	cost, ok := table.Estimate("openai", "gpt-4", i64(1_000_000), nil, nil)
	if !ok {
		t.Fatal("fallback rule not reached past malformed pattern")
	}
	if cost != 2 {
		t.Errorf("cost = %v, want 2 from the valid rule", cost)
	}
}
