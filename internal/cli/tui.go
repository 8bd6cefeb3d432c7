package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/quickmod/pkg/install"
)

// List styles
var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
	barFilled    = lipgloss.NewStyle().Foreground(colorCyan)
	barEmpty     = lipgloss.NewStyle().Foreground(colorDim)
)

const barWidth = 24

// =============================================================================
// installModel - Live download progress
// =============================================================================

// statusMsg carries an orchestrator status event into the program.
type statusMsg install.StatusEvent

// installDoneMsg is sent once the orchestration has returned.
type installDoneMsg struct {
	report *install.Report
	err    error
}

// installModel is the bubbletea model showing one row per tracked version.
type installModel struct {
	rows   []install.StatusEvent // indexed by handle
	mods   int
	done   bool
	report *install.Report
	err    error
	width  int
}

func newInstallModel(mods int) installModel {
	return installModel{mods: mods, width: 100}
}

func newInstallProgram(ctx context.Context, mods int) *tea.Program {
	return tea.NewProgram(newInstallModel(mods), tea.WithContext(ctx), tea.WithOutput(os.Stderr))
}

func (m installModel) Init() tea.Cmd {
	return nil
}

func (m installModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		h := int(msg.Handle)
		for len(m.rows) <= h {
			m.rows = append(m.rows, install.StatusEvent{Handle: install.Handle(len(m.rows))})
		}
		m.rows[h] = install.StatusEvent(msg)
	case installDoneMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

func (m installModel) View() string {
	var b strings.Builder

	finished := 0
	for _, r := range m.rows {
		if r.State.Terminal() {
			finished++
		}
	}
	b.WriteString(StyleTitle.Render(fmt.Sprintf("Installing %d mods", m.mods)))
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", finished, len(m.rows))))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("q quit"))
	b.WriteString("\n\n")

	for _, r := range m.rows {
		if r.UID == "" {
			continue
		}
		style := colorStyle(r.Color)
		line := fmt.Sprintf("%s %-28s %-12s %s %s",
			style.Render(stateIcon(r.State)),
			truncate(string(r.UID), 28),
			truncate(r.Version, 12),
			progressBar(r.Progress),
			style.Render(truncate(r.Message, max(m.width-barWidth-48, 10))),
		)
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// progressBar renders the transfer of an active row, or blank space.
func progressBar(p install.Progress) string {
	if !p.Active {
		return strings.Repeat(" ", barWidth)
	}
	if p.Max <= 0 {
		return listDimStyle.Render(fmt.Sprintf("%-*s", barWidth, formatBytes(p.Current)))
	}
	filled := int(float64(barWidth) * float64(min(p.Current, p.Max)) / float64(p.Max))
	return barFilled.Render(strings.Repeat("█", filled)) + barEmpty.Render(strings.Repeat("░", barWidth-filled))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
