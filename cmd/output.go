// cmd/output.go
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	mutedColor  = color.New(color.FgHiBlack)
	noColor     bool
)

// newLogger returns a logger for a server component, e.g. "[api] ".
func newLogger(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}

// logFn adapts the LogFn callback used by agent-side components to the
// command output: debug lines go through Debug, warnings and errors to
// stderr.
func logFn(level, msg string) {
	switch level {
	case "debug":
		Debug("%s", msg)
	case "warning", "error":
		fmt.Fprintln(os.Stderr, msg)
	default:
		fmt.Println(msg)
	}
}

func applyNoColor() {
	if noColor {
		color.NoColor = true
	}
}
