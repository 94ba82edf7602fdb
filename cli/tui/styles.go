// Package tui provides read-only Bubble Tea views for bundler output.
//
// TUI is opt-in (--tui) and renders the same payloads as the json, table
// and yaml formats.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette. Adaptive colors keep text readable on light terminals.
var (
	primaryColor   = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	successColor   = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	warningColor   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	errorColor     = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	mutedColor     = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	textColor      = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"}
	highlightColor = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
)

// Styles shared by the report and manifest views.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(18)

	ValueStyle = lipgloss.NewStyle().
			Foreground(textColor)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// SelectedStyle marks the cursor row of a list.
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Align(lipgloss.Center)
)

// SizeStyle flags assets over the large-file warning thresholds.
func SizeStyle(sizeMB, warnMB float64) lipgloss.Style {
	switch {
	case warnMB > 0 && sizeMB > warnMB:
		return ErrorStyle
	case warnMB > 0 && sizeMB > warnMB/2:
		return WarningStyle
	default:
		return ValueStyle
	}
}
