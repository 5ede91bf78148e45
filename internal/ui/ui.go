// Package ui holds the small set of colored-output helpers shared by the
// CLI layer: plain functions composing github.com/fatih/color
// (ui.Dim(ui.Bold(...))) rather than an abstraction over them.
package ui

import (
	"io"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// IsTTY reports whether w is a terminal color output should be enabled
// for. Non-tty writers (CI logs, redirected files) get plain text.
func IsTTY(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Dim renders s in a dimmed gray, the secondary-text convention used for
// timings and file paths.
func Dim(s string) string {
	return color.New(color.FgHiBlack).Sprint(s)
}

// Bold renders s in bold.
func Bold(s string) string {
	return color.New(color.Bold).Sprint(s)
}

// Green renders s in bold green, used for success/cache-hit lines.
func Green(s string) string {
	return color.New(color.FgGreen, color.Bold).Sprint(s)
}

// Red renders s in bold red, used for failure lines.
func Red(s string) string {
	return color.New(color.FgRed, color.Bold).Sprint(s)
}

// Yellow renders s in yellow, used for skip/warning lines.
func Yellow(s string) string {
	return color.New(color.FgYellow).Sprint(s)
}

// ErrorPrefix renders the " ERROR " banner prepended to a fatal error
// line.
func ErrorPrefix() string {
	return color.New(color.Bold, color.FgRed, color.ReverseVideo).Sprint(" ERROR ")
}
