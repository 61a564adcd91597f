// Package ui renders human-facing output for the CLI as colored status
// lines. All decoration is
// suppressed when stdout is not a terminal or when quiet/json mode is on, so
// machine consumers only ever see the JSON record.
package ui

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	mu    sync.Mutex
	quiet bool

	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	faint  = color.New(color.Faint)
)

func init() {
	// fatih/color only checks NO_COLOR and TERM; piped output still needs
	// decorations off.
	if !IsTTY() {
		color.NoColor = true
	}
}

// SetQuiet silences the stdout status lines; warnings and errors still go to
// stderr. --json implies quiet.
func SetQuiet(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// IsTTY reports whether stdout is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Infof prints a plain status line.
func Infof(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		return
	}
	fmt.Printf(format+"\n", args...)
}

// Successf prints a green check line.
func Successf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		return
	}
	green.Printf("✓ "+format+"\n", args...)
}

// Warnf prints a yellow warning line to stderr.
func Warnf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	yellow.Fprintf(os.Stderr, "⚠ "+format+"\n", args...)
}

// Errorf prints a red error line to stderr. Never silenced.
func Errorf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	red.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// Mutedf prints a dim detail line.
func Mutedf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		return
	}
	faint.Printf("  "+format+"\n", args...)
}

