package format

import (
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether stdout should use terminal formatting. Piped
// output, NO_COLOR, and dumb or unset TERM all disable it.
func IsTTY() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	termEnv := os.Getenv("TERM")
	if termEnv == "dumb" || termEnv == "" {
		return false
	}

	return term.IsTerminal(int(os.Stdout.Fd()))
}
