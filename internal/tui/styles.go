// Package tui provides terminal rendering helpers shared by the vpswatch
// commands: a color palette, node state and latency styles, usage bars and
// width-aware padding for node names that contain wide characters.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/aceteam-ai/vpswatch/internal/latency"
	"github.com/aceteam-ai/vpswatch/internal/status"
)

// Color palette
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#5A67D8", Dark: "#7C3AED"}
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#38B2AC", Dark: "#4FD1C5"}
	ColorSuccess   = lipgloss.AdaptiveColor{Light: "#38A169", Dark: "#48BB78"}
	ColorWarning   = lipgloss.AdaptiveColor{Light: "#D69E2E", Dark: "#F6E05E"}
	ColorError     = lipgloss.AdaptiveColor{Light: "#E53E3E", Dark: "#FC8181"}
	ColorMuted     = lipgloss.AdaptiveColor{Light: "#718096", Dark: "#A0AEC0"}
	ColorText      = lipgloss.AdaptiveColor{Light: "#1A202C", Dark: "#F7FAFC"}
)

// Base styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SubtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	LabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorMuted)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
)

// Usage thresholds, in percent, at which bars turn warning and critical.
const (
	UsageWarning  = 75.0
	UsageCritical = 90.0
)

// IsTTY returns true if stdout is a terminal
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the width of stdout, or fallback when stdout is not
// a terminal.
func TerminalWidth(fallback int) int {
	if !IsTTY() {
		return fallback
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// StateStyle returns the style used for a node state.
func StateStyle(s status.State) lipgloss.Style {
	switch s {
	case status.StateOnline:
		return SuccessStyle
	case status.StateOffline:
		return ErrorStyle
	default:
		return MutedStyle
	}
}

// StatusIndicator returns a colored dot for a node state.
func StatusIndicator(s status.State) string {
	return StateStyle(s).Render("●")
}

// LatencyStyle returns the style for a latency grade.
func LatencyStyle(g latency.Grade) lipgloss.Style {
	switch g {
	case latency.GradeGood:
		return SuccessStyle
	case latency.GradeMedium:
		return WarningStyle
	case latency.GradePoor:
		return ErrorStyle
	default:
		return MutedStyle
	}
}

// LatencyText formats a round trip in milliseconds; unreachable is "-".
func LatencyText(ms float64, ok bool) string {
	if !ok || ms < 0 {
		return "-"
	}
	return fmt.Sprintf("%.0fms", ms)
}

// UsageLevel maps a percentage to the style a bar should use.
func UsageLevel(percent float64) lipgloss.Style {
	switch {
	case percent >= UsageCritical:
		return ErrorStyle
	case percent >= UsageWarning:
		return WarningStyle
	default:
		return SuccessStyle
	}
}

// UsageBar renders a colored usage bar width cells wide.
func UsageBar(percent float64, width int) string {
	filled, empty := barCells(percent, width)
	return UsageLevel(percent).Render(strings.Repeat("█", filled)) +
		MutedStyle.Render(strings.Repeat("░", empty))
}

// barCells splits width into filled and empty cells for percent.
func barCells(percent float64, width int) (filled, empty int) {
	if width <= 0 {
		width = 20
	}
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	filled = min(int(percent/100.0*float64(width)), width)
	return filled, width - filled
}

// Pad fits s into exactly width display cells, truncating with an ellipsis
// when it is too long. Wide characters count as two cells.
func Pad(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	return LabelStyle.Render(key+":") + " " + ValueStyle.Render(value)
}
