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

package budget

import (
	"context"
	"testing"
	"time"

	"github.com/wefthq/weft/internal/classify"
	"github.com/wefthq/weft/internal/rollup"
	"github.com/wefthq/weft/internal/store"
	"github.com/wefthq/weft/pkg/telemetry"
)

// checkTime is the pinned "now" for every test: mid-month, midday.
var checkTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func modelCall(traceID, spanID string, tokens float64, start time.Time) *telemetry.Span {
	return &telemetry.Span{
		TraceID:     traceID,
		SpanID:      spanID,
		ExecutionID: "exec-" + traceID,
		Name:        "llm.complete",
		Kind:        telemetry.SpanKindExternal,
		Status:      telemetry.StatusOK,
		StartTime:   start,
		EndTime:     start.Add(time.Second),
		Attributes: telemetry.Attributes{
			"llm.provider":           telemetry.StringValue("openai"),
			"llm.model":              telemetry.StringValue("gpt-4"),
			"llm.usage.total_tokens": telemetry.NumberValue(tokens),
		},
	}
}

func newTracker(t *testing.T, settings Settings, spans ...*telemetry.Span) *Tracker {
	t.Helper()
	s := store.NewMemory()
	t.Cleanup(func() { s.Close() })
	for _, span := range spans {
		if err := s.Append(context.Background(), span); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	roller := rollup.New(s, classify.New(), rollup.NewStaticOwnership(s, nil, ""), nil)
	tr := New(roller, settings, nil)
	tr.now = func() time.Time { return checkTime }
	return tr
}

func TestCheckDisabled(t *testing.T) {
	tr := newTracker(t, Settings{Enabled: false, TokenLimit: 1000})

	report, err := tr.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Enabled {
		t.Error("expected disabled report")
	}
	if report.Status != StatusOK {
		t.Errorf("Status = %q, want %q", report.Status, StatusOK)
	}
}

func TestCheckMonthlyWindow(t *testing.T) {
	// 800 tokens this month, 500 last month. Only this month counts.
	tr := newTracker(t, Settings{Enabled: true, TokenLimit: 1000, Period: PeriodMonthly},
		modelCall("t1", "s1", 800, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)),
		modelCall("t2", "s1", 500, time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)),
	)

	report, err := tr.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !report.Enabled {
		t.Fatal("expected enabled report")
	}
	if report.Used != 800 {
		t.Errorf("Used = %d, want 800", report.Used)
	}
	if report.Remaining != 200 {
		t.Errorf("Remaining = %d, want 200", report.Remaining)
	}
	if report.Percentage != 80 {
		t.Errorf("Percentage = %v, want 80", report.Percentage)
	}
	if report.Status != StatusWarning {
		t.Errorf("Status = %q, want %q", report.Status, StatusWarning)
	}
	wantStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !report.PeriodStart.Equal(wantStart) {
		t.Errorf("PeriodStart = %v, want %v", report.PeriodStart, wantStart)
	}
}

func TestCheckDailyWindow(t *testing.T) {
	// 300 tokens today, 700 yesterday. Daily period only sees today.
	tr := newTracker(t, Settings{Enabled: true, TokenLimit: 1000, Period: PeriodDaily},
		modelCall("t1", "s1", 300, time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)),
		modelCall("t2", "s1", 700, time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)),
	)

	report, err := tr.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Used != 300 {
		t.Errorf("Used = %d, want 300", report.Used)
	}
	if report.Status != StatusOK {
		t.Errorf("Status = %q, want %q", report.Status, StatusOK)
	}
	if report.Percentage != 30 {
		t.Errorf("Percentage = %v, want 30", report.Percentage)
	}
	wantStart := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if !report.PeriodStart.Equal(wantStart) {
		t.Errorf("PeriodStart = %v, want %v", report.PeriodStart, wantStart)
	}
}

func TestCheckExceeded(t *testing.T) {
	tr := newTracker(t, Settings{Enabled: true, TokenLimit: 1000},
		modelCall("t1", "s1", 1200, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)),
	)

	report, err := tr.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Status != StatusExceeded {
		t.Errorf("Status = %q, want %q", report.Status, StatusExceeded)
	}
	if report.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", report.Remaining)
	}
	if report.Percentage != 120 {
		t.Errorf("Percentage = %v, want 120", report.Percentage)
	}
}

func TestCheckBreakdown(t *testing.T) {
	tr := newTracker(t, Settings{Enabled: true, TokenLimit: 10000},
		modelCall("t1", "s1", 100, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)),
		modelCall("t2", "s1", 200, time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC)),
	)

	report, err := tr.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.ByModel) != 1 {
		t.Fatalf("ByModel rows = %d, want 1", len(report.ByModel))
	}
	m := report.ByModel[0]
	if m.Provider != "openai" || m.Model != "gpt-4" {
		t.Errorf("ByModel = %s/%s, want openai/gpt-4", m.Provider, m.Model)
	}
	if m.TotalTokens != 300 || m.CallCount != 2 {
		t.Errorf("ByModel tokens=%d calls=%d, want 300/2", m.TotalTokens, m.CallCount)
	}
	if len(report.ByWorkflow) == 0 {
		t.Error("expected a workflow breakdown")
	}
}

func TestUpdateSwapsLimit(t *testing.T) {
	tr := newTracker(t, Settings{Enabled: true, TokenLimit: 1000},
		modelCall("t1", "s1", 300, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)),
	)

	report, err := tr.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("Status = %q, want %q", report.Status, StatusOK)
	}

	tr.Update(Settings{Enabled: true, TokenLimit: 200})

	report, err = tr.Check(context.Background())
	if err != nil {
		t.Fatalf("Check after update: %v", err)
	}
	if report.Status != StatusExceeded {
		t.Errorf("Status = %q, want %q", report.Status, StatusExceeded)
	}
}
