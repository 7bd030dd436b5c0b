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

// Package budget tracks token usage against configured limits. Usage is
// never accumulated: every check rolls the current period up from stored
// spans, so the numbers survive restarts and span replacement for free.
package budget

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wefthq/weft/internal/rollup"
	"github.com/wefthq/weft/pkg/telemetry"
)

// Status is the budget health indicator.
type Status string

const (
	// StatusOK means usage is comfortably under the limit.
	StatusOK Status = "ok"

	// StatusWarning means usage crossed the warning threshold.
	StatusWarning Status = "warning"

	// StatusExceeded means the period's allowance is spent.
	StatusExceeded Status = "exceeded"
)

// Period names the budget window.
const (
	PeriodMonthly = "monthly"
	PeriodDaily   = "daily"
)

// DefaultWarningThreshold is the usage fraction at which status turns to
// warning when none is configured.
const DefaultWarningThreshold = 0.8

// Settings configures the tracker. Hot reload swaps these via Update.
type Settings struct {
	// Enabled activates budget checks. A disabled tracker reports ok
	// without querying anything.
	Enabled bool

	// TokenLimit is the allowance per period.
	TokenLimit int64

	// Period is "monthly" (resets on the first of the month) or "daily"
	// (resets at midnight).
	Period string

	// WarningThreshold is the usage fraction (0-1] at which status
	// becomes warning.
	WarningThreshold float64
}

// Report is the answer to a budget check.
type Report struct {
	Enabled     bool      `json:"enabled"`
	Status      Status    `json:"status"`
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit,omitempty"`
	Remaining   int64     `json:"remaining"`
	Percentage  float64   `json:"percentage"`
	Period      string    `json:"period,omitempty"`
	PeriodStart time.Time `json:"period_start,omitzero"`

	// ByModel and ByWorkflow break the period's usage down for "where
	// did the tokens go" answers.
	ByModel    []telemetry.ProviderMetric `json:"by_model,omitempty"`
	ByWorkflow []telemetry.ProjectCost    `json:"by_workflow,omitempty"`
}

// Tracker checks token usage against the configured budget.
type Tracker struct {
	roller *rollup.Roller
	logger *slog.Logger

	mu       sync.RWMutex
	settings Settings

	// now is swapped in tests to pin the period boundary.
	now func() time.Time
}

// New creates a Tracker.
func New(r *rollup.Roller, settings Settings, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		roller:   r,
		settings: normalize(settings),
		logger:   logger,
		now:      time.Now,
	}
}

// Update swaps the settings. Used by the config watcher on hot reload.
func (t *Tracker) Update(settings Settings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings = normalize(settings)
}

// Check rolls up the current period's token usage and grades it against
// the limit.
func (t *Tracker) Check(ctx context.Context) (Report, error) {
	t.mu.RLock()
	settings := t.settings
	t.mu.RUnlock()

	if !settings.Enabled || settings.TokenLimit <= 0 {
		return Report{Enabled: false, Status: StatusOK}, nil
	}

	start := periodStart(t.now(), settings.Period)
	window := telemetry.Window{Since: start}

	byModel, err := t.roller.Rollup(ctx, window, rollup.Filter{})
	if err != nil {
		return Report{}, err
	}
	byWorkflow, err := t.roller.CostByProject(ctx, window)
	if err != nil {
		return Report{}, err
	}

	var used int64
	for _, m := range byModel {
		used += m.TotalTokens
	}

	percentage := float64(used) / float64(settings.TokenLimit) * 100
	percentage = math.Round(percentage*100) / 100

	status := StatusOK
	switch {
	case percentage >= 100:
		status = StatusExceeded
	case percentage >= settings.WarningThreshold*100:
		status = StatusWarning
	}

	remaining := settings.TokenLimit - used
	if remaining < 0 {
		remaining = 0
	}

	return Report{
		Enabled:     true,
		Status:      status,
		Used:        used,
		Limit:       settings.TokenLimit,
		Remaining:   remaining,
		Percentage:  percentage,
		Period:      settings.Period,
		PeriodStart: start,
		ByModel:     byModel,
		ByWorkflow:  byWorkflow,
	}, nil
}

func normalize(s Settings) Settings {
	if s.Period != PeriodDaily {
		s.Period = PeriodMonthly
	}
	if s.WarningThreshold <= 0 || s.WarningThreshold > 1 {
		s.WarningThreshold = DefaultWarningThreshold
	}
	return s
}

// periodStart returns the beginning of the budget period containing now.
func periodStart(now time.Time, period string) time.Time {
	if period == PeriodDaily {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}
