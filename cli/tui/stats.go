package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/pithecene-io/bundler/bundle"
	"github.com/pithecene-io/bundler/types"
)

func renderStatBox(label, value string, color lipgloss.TerminalColor) string {
	return StatBoxStyle.BorderForeground(color).Render(
		StatLabelStyle.Render(label) + "\n" + StatValueStyle.Render(value),
	)
}

// renderManifestStats summarizes a manifest in stat boxes.
func renderManifestStats(m *types.Manifest) string {
	optimized := lo.CountBy(m.Items, func(it types.AssetRecord) bool {
		return it.Optimization != nil && it.Optimization.Optimized
	})
	categories := len(lo.Uniq(lo.Map(m.Items, func(it types.AssetRecord, _ int) string {
		return it.Category
	})))

	boxes := []string{
		renderStatBox("Items", fmt.Sprintf("%d", m.Total), highlightColor),
		renderStatBox("Size", fmt.Sprintf("%.2f MB", m.TotalSizeMB), primaryColor),
		renderStatBox("Categories", fmt.Sprintf("%d", categories), mutedColor),
	}
	if m.AssetClass == types.AssetClassImages {
		boxes = append(boxes, renderStatBox("Optimized", fmt.Sprintf("%d", optimized), successColor))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
	generated := LabelStyle.Width(0).Render("Generated " + m.GeneratedAt.Format("2006-01-02 15:04:05"))
	return header + "\n" + generated
}

// ReportModel shows the outcome of a bundle run.
type ReportModel struct {
	report   *bundle.Report
	width    int
	height   int
	quitting bool
}

// NewReportModel creates a model for r.
func NewReportModel(r *bundle.Report) ReportModel {
	return ReportModel{report: r}
}

// Init implements tea.Model.
func (m ReportModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m ReportModel) View() string {
	if m.quitting {
		return ""
	}
	r := m.report

	failColor := successColor
	if len(r.Failures) > 0 {
		failColor = errorColor
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Bundle Run"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Discovered", fmt.Sprintf("%d", r.TotalDiscovered()), highlightColor),
		renderStatBox("Downloaded", fmt.Sprintf("%d", r.TotalDownloaded()), successColor),
		renderStatBox("Failed", fmt.Sprintf("%d", len(r.Failures)), failColor),
		renderStatBox("Written", fmt.Sprintf("%.2f MB", float64(r.TotalBytes)/(1024*1024)), primaryColor),
	))
	b.WriteString("\n\n")

	for _, c := range slices.Sorted(maps.Keys(r.Discovered)) {
		fmt.Fprintf(&b, "%s %s\n",
			LabelStyle.Render(string(c)+":"),
			ValueStyle.Render(fmt.Sprintf("%d of %d downloaded → %s", r.Downloaded[c], r.Discovered[c], r.Manifests[c])))
	}
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Duplicates:"), ValueStyle.Render(fmt.Sprintf("%d removed", r.DuplicatesRemoved)))
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Duration:"), ValueStyle.Render(r.Duration().Round(time.Millisecond).String()))

	switch {
	case r.PubspecError != "":
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Pubspec:"), ErrorStyle.Render(r.PubspecError))
	case r.Pubspec != nil:
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Pubspec:"),
			SuccessStyle.Render(fmt.Sprintf("%d added, %d already declared", len(r.Pubspec.Added), len(r.Pubspec.AlreadyDeclared))))
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Bold(true).Render("Failures"))
		b.WriteString("\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  • %s %s\n", ValueStyle.Render(f.Path), ErrorStyle.Render(f.Error))
		}
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return BoxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n" + help
}

// RunReportTUI runs the report view.
func RunReportTUI(data any) error {
	r, ok := data.(*bundle.Report)
	if !ok {
		return fmt.Errorf("report view needs *bundle.Report, got %T", data)
	}
	p := tea.NewProgram(NewReportModel(r), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
