// Package format renders CLI values for terminal output: token counts,
// costs, durations and timestamps, plus JSON pretty-printing with
// optional syntax highlighting when stdout is a TTY.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer adds thousands separators to token counts.
var printer = message.NewPrinter(language.English)

// ansiEscapeRegex matches ANSI escape sequences.
var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// Sanitize strips ANSI escape sequences from a string. Span and trace
// names come from remote clients and are printed into table cells, so
// they must not be able to move the cursor or recolor the terminal.
func Sanitize(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

// JSON pretty-prints v with 2-space indentation. On a TTY the output
// is syntax-highlighted; highlighting failures fall back to plain JSON.
func JSON(v interface{}, isTTY bool) (string, error) {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format JSON: %w", err)
	}

	if !isTTY {
		return string(formatted), nil
	}

	var buf bytes.Buffer
	if err := quick.Highlight(&buf, string(formatted), "json", "terminal256", "monokai"); err != nil {
		return string(formatted), nil
	}
	return buf.String(), nil
}

// Tokens renders a token count with thousands separators.
func Tokens(n int64) string {
	return printer.Sprintf("%d", n)
}

// Cost renders a dollar cost with four decimal places, enough to show
// sub-cent LLM calls without drowning larger totals.
func Cost(c float64) string {
	return fmt.Sprintf("$%.4f", c)
}

// Duration renders a duration at a precision matched to its size.
func Duration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// Millis renders a millisecond count the same way as Duration.
func Millis(ms int64) string {
	return Duration(time.Duration(ms) * time.Millisecond)
}

// Time renders recent timestamps as time of day and older ones with
// their date.
func Time(t time.Time) string {
	if time.Since(t) < 24*time.Hour {
		return t.Format("15:04:05")
	}
	return t.Format("2006-01-02 15:04")
}

// ShortID truncates an ID for table display.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
