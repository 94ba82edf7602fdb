package tui

import (
	"fmt"
	"slices"
)

// View types with an interactive rendering.
const (
	ViewManifest = "inspect_manifest"
	ViewReport   = "inspect_report"
)

// Run starts the TUI for the view type.
func Run(viewType string, data any) error {
	switch viewType {
	case ViewManifest:
		return RunManifestTUI(data)
	case ViewReport:
		return RunReportTUI(data)
	default:
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// IsTUISupported reports whether the view type has a TUI.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews lists the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewManifest, ViewReport}
}
