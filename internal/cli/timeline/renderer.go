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

// Package timeline renders a trace as an ASCII waterfall: one line per
// span, a duration bar positioned on the trace's time axis, and the
// span's status and cost alongside.
package timeline

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/wefthq/weft/internal/cli/format"
	"github.com/wefthq/weft/pkg/telemetry"
)

const (
	// MinTerminalWidth is the narrowest terminal the waterfall fits in.
	MinTerminalWidth = 80
	// DefaultBarWidth is the default width for duration bars.
	DefaultBarWidth = 40

	iconOK    = "✓"
	iconError = "✗"
	iconOpen  = "◌"
)

// row is one span laid out for rendering: tree depth plus the absolute
// interval its bar covers.
type row struct {
	name     string
	start    time.Time
	end      time.Time
	dur      time.Duration
	status   telemetry.Status
	open     bool
	cost     float64
	level    int
	isParent bool
}

// Renderer renders ASCII waterfalls from a trace's span tree.
type Renderer struct {
	Width    int
	BarWidth int
}

// NewRenderer creates a renderer sized to the terminal. Rendering is
// refused when the terminal is too narrow for a readable axis.
func NewRenderer() (*Renderer, error) {
	width, _, err := term.GetSize(0)
	if err != nil {
		// Not a terminal (piped output); use a fixed width.
		width = 100
	}

	if width < MinTerminalWidth {
		return nil, fmt.Errorf("terminal width %d is too narrow (minimum %d columns)", width, MinTerminalWidth)
	}

	// Reserve space for the name column, duration, status, and cost.
	barWidth := width - 50
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < DefaultBarWidth {
		barWidth = DefaultBarWidth
	}

	return &Renderer{
		Width:    width,
		BarWidth: barWidth,
	}, nil
}

// Render draws the trace's span tree as a waterfall. Open spans extend
// to the right edge of the axis and carry the open marker instead of a
// status icon.
func (r *Renderer) Render(traceID string, tree *telemetry.TreeNode) (string, error) {
	rows := flatten(tree)
	if len(rows) == 0 {
		return "", fmt.Errorf("no spans to render")
	}

	minTime, maxTime := bounds(rows)
	total := maxTime.Sub(minTime)
	if total <= 0 {
		total = time.Millisecond
	}

	// Open spans have no end; their bars run to the axis edge.
	for i := range rows {
		if rows[i].open {
			rows[i].end = maxTime
			rows[i].dur = maxTime.Sub(rows[i].start)
		}
	}

	totalCost := 0.0
	for _, rw := range rows {
		totalCost += rw.cost
	}

	var sb strings.Builder

	border := strings.Repeat("─", r.Width-2)
	sb.WriteString("┌" + border + "┐\n")

	header := fmt.Sprintf("│ Trace: %-*s Total: %s  │\n",
		r.Width-25,
		truncate(format.Sanitize(traceID), r.Width-25),
		format.Duration(total))
	sb.WriteString(header)

	sb.WriteString("├" + border + "┤\n")

	for _, rw := range rows {
		sb.WriteString(r.renderRow(rw, minTime, total))
	}

	sb.WriteString("└" + border + "┘\n")

	if totalCost > 0 {
		sb.WriteString(fmt.Sprintf("\nTotal cost: %s\n", format.Cost(totalCost)))
	}

	return sb.String(), nil
}

// flatten walks the tree into render order. A synthetic root grouping
// orphans is skipped; its children render at top level.
func flatten(tree *telemetry.TreeNode) []row {
	var rows []row
	if tree == nil {
		return rows
	}
	synthetic := tree.Synthetic()
	tree.Walk(func(node *telemetry.TreeNode, depth int) {
		if node.Span == nil {
			return
		}
		if synthetic {
			depth--
		}
		rows = append(rows, row{
			name:     format.Sanitize(node.Span.Name),
			start:    node.Span.StartTime,
			end:      node.Span.EndTime,
			dur:      node.Span.Duration(),
			status:   node.Span.Status,
			open:     node.Span.IsOpen(),
			cost:     node.Span.Cost(),
			level:    depth,
			isParent: len(node.Children) > 0,
		})
	})
	return rows
}

// bounds finds the earliest start and latest end across all rows. Open
// spans contribute only their start.
func bounds(rows []row) (time.Time, time.Time) {
	minTime := rows[0].start
	maxTime := rows[0].start

	for _, rw := range rows {
		if rw.start.Before(minTime) {
			minTime = rw.start
		}
		if !rw.end.IsZero() && rw.end.After(maxTime) {
			maxTime = rw.end
		}
		if rw.start.After(maxTime) {
			maxTime = rw.start
		}
	}

	return minTime, maxTime
}

// renderRow generates the waterfall line for a single span.
func (r *Renderer) renderRow(rw row, minTime time.Time, total time.Duration) string {
	startOffset := rw.start.Sub(minTime)
	startPos := int(float64(startOffset) / float64(total) * float64(r.BarWidth))
	barLength := int(float64(rw.dur) / float64(total) * float64(r.BarWidth))

	if barLength < 1 {
		barLength = 1
	}
	if startPos >= r.BarWidth {
		startPos = r.BarWidth - 1
	}
	if startPos+barLength > r.BarWidth {
		barLength = r.BarWidth - startPos
	}

	bar := make([]rune, r.BarWidth)
	for i := 0; i < r.BarWidth; i++ {
		if i >= startPos && i < startPos+barLength {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}

	icon := iconOK
	switch {
	case rw.open:
		icon = iconOpen
	case rw.status == telemetry.StatusError:
		icon = iconError
	}

	indent := strings.Repeat("  ", rw.level)
	prefix := ""
	if rw.level > 0 {
		if rw.isParent {
			prefix = "├─ "
		} else {
			prefix = "└─ "
		}
	}

	nameWidth := 20 - len(indent) - len(prefix)
	if nameWidth < 10 {
		nameWidth = 10
	}
	name := truncate(rw.name, nameWidth)

	costStr := ""
	if rw.cost > 0 {
		costStr = format.Cost(rw.cost)
	}

	return fmt.Sprintf("│ %s%s%-*s %s  %6s  %s  %8s │\n",
		indent,
		prefix,
		nameWidth,
		name,
		string(bar),
		format.Duration(rw.dur),
		icon,
		costStr,
	)
}

// truncate shortens a string to maxLen with ellipsis if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
