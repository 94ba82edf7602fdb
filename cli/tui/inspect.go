package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/bundler/types"
)

// Large-file thresholds used to color sizes, in MB.
const (
	imageWarnMB = 5
	pdfWarnMB   = 10
)

// ManifestModel browses the items of one manifest.
type ManifestModel struct {
	manifest *types.Manifest
	cursor   int
	offset   int
	width    int
	height   int
	quitting bool
}

// NewManifestModel creates a model for m.
func NewManifestModel(m *types.Manifest) ManifestModel {
	return ManifestModel{manifest: m, height: 24, width: 80}
}

// Init implements tea.Model.
func (m ManifestModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ManifestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clamp()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.cursor--
		case key.Matches(msg, keys.Down):
			m.cursor++
		case key.Matches(msg, keys.Top):
			m.cursor = 0
		case key.Matches(msg, keys.Bottom):
			m.cursor = len(m.manifest.Items) - 1
		}
		m.clamp()
	}

	return m, nil
}

// Cursor returns the index of the selected item.
func (m ManifestModel) Cursor() int {
	return m.cursor
}

// listRows is the number of item rows that fit next to the header and the
// detail box.
func (m ManifestModel) listRows() int {
	return max(m.height-18, 3)
}

func (m *ManifestModel) clamp() {
	n := len(m.manifest.Items)
	m.cursor = max(0, min(m.cursor, n-1))
	rows := m.listRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

// View implements tea.Model.
func (m ManifestModel) View() string {
	if m.quitting {
		return ""
	}
	if m.manifest == nil {
		return "No manifest loaded"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Manifest: %s", m.manifest.AssetClass)))
	b.WriteString("\n")
	b.WriteString(renderManifestStats(m.manifest))
	b.WriteString("\n\n")

	if len(m.manifest.Items) == 0 {
		b.WriteString(WarningStyle.Render("(no items)"))
	} else {
		b.WriteString(m.renderList())
		b.WriteString("\n")
		b.WriteString(m.renderDetail(m.manifest.Items[m.cursor]))
	}

	help := HelpStyle.Render("↑/k up • ↓/j down • g/G top/bottom • q quit")
	return b.String() + "\n" + help
}

func (m ManifestModel) renderList() string {
	items := m.manifest.Items
	end := min(m.offset+m.listRows(), len(items))
	warn := warnMB(m.manifest.AssetClass)

	var b strings.Builder
	for i := m.offset; i < end; i++ {
		it := items[i]
		size := SizeStyle(it.SizeMB, warn).Render(fmt.Sprintf("%8.2f MB", it.SizeMB))
		line := fmt.Sprintf("%-48s %s", truncate(it.Path, 48), size)
		if i == m.cursor {
			b.WriteString(SelectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString(LabelStyle.Width(0).Render(fmt.Sprintf("%d/%d", m.cursor+1, len(items))))
	return b.String()
}

func (m ManifestModel) renderDetail(it types.AssetRecord) string {
	rows := [][]string{
		{"Name", it.Name},
		{"File", it.FileName},
		{"Asset Path", it.AssetPath},
		{"URL", it.URL},
		{"Size", fmt.Sprintf("%d bytes (%.2f MB)", it.SizeBytes, it.SizeMB)},
		{"Downloaded", it.DownloadedAt.Format("2006-01-02 15:04:05")},
	}
	if it.Category != "" {
		rows = append(rows, []string{"Category", it.Category})
	}
	if it.DisplayName != "" {
		rows = append(rows, []string{"Title", it.DisplayName})
	}
	if o := it.Optimization; o != nil {
		if o.Optimized {
			rows = append(rows, []string{"Optimized", fmt.Sprintf("%s %dx%d, -%.1f%%", o.OriginalFormat, o.Width, o.Height, o.ReductionPercent)})
		} else if o.Error != "" {
			rows = append(rows, []string{"Optimized", ErrorStyle.Render(o.Error)})
		}
	}

	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1]))
	}
	return BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func warnMB(class types.AssetClass) float64 {
	if class == types.AssetClassPDFs {
		return pdfWarnMB
	}
	return imageWarnMB
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}

// keyMap defines key bindings.
type keyMap struct {
	Quit   key.Binding
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Top: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("G", "bottom"),
	),
}

// RunManifestTUI runs the manifest browser.
func RunManifestTUI(data any) error {
	m, ok := data.(*types.Manifest)
	if !ok {
		return fmt.Errorf("manifest view needs *types.Manifest, got %T", data)
	}
	p := tea.NewProgram(NewManifestModel(m), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderManifestStatic renders the manifest view without a terminal
// program.
func RenderManifestStatic(m *types.Manifest) string {
	return lipgloss.NewStyle().Padding(1, 2).Render(NewManifestModel(m).View())
}
