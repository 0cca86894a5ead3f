package cli

import (
	"io"

	"golang.org/x/term"
)

// TerminalDetector reports whether a file descriptor is an interactive
// terminal. Tests replace it.
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector uses golang.org/x/term
type DefaultTerminalDetector struct{}

func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

type fdWriter interface {
	Fd() uintptr
}

// isInteractive reports whether w is a terminal. Writers without a file
// descriptor never are.
func (c *CLI) isInteractive(w io.Writer) bool {
	f, ok := w.(fdWriter)
	if !ok {
		return false
	}
	return c.terminalDetector.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the column count of w, or 80 when unknown
func terminalWidth(w io.Writer) int {
	if f, ok := w.(fdWriter); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}
