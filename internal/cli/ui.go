package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/quickmod/pkg/install"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorBlue   = lipgloss.Color("75")
	colorWhite  = lipgloss.Color("255")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

var (
	// StyleTitle for mod names and section headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleHighlight for uids in tables.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleLink for descriptor and download URLs.
	StyleLink = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)

	StyleDim     = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

var (
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)
	styleCommand     = lipgloss.NewStyle().Foreground(colorBlue)
	styleFieldKey    = lipgloss.NewStyle().Foreground(colorGray).Width(12)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// statusStyles renders the orchestrator's color hints. Line output uses the
// same hints as the progress view, so both agree on what a color means.
var statusStyles = map[install.Color]lipgloss.Style{
	install.ColorDefault: lipgloss.NewStyle().Foreground(colorGray),
	install.ColorBlue:    lipgloss.NewStyle().Foreground(colorBlue),
	install.ColorGreen:   lipgloss.NewStyle().Foreground(colorGreen),
	install.ColorRed:     lipgloss.NewStyle().Foreground(colorRed),
	install.ColorYellow:  lipgloss.NewStyle().Foreground(colorYellow),
}

// colorStyle maps an orchestrator color hint to the CLI palette.
func colorStyle(c install.Color) lipgloss.Style {
	if s, ok := statusStyles[c]; ok {
		return s
	}
	return statusStyles[install.ColorDefault]
}

func stateIcon(s install.State) string {
	switch s {
	case install.Completed:
		return iconSuccess
	case install.Failed:
		return iconError
	case install.AwaitingUserInteraction:
		return iconWarning
	case install.Downloading:
		return iconArrow
	default:
		return iconInfo
	}
}

// mark renders a message behind an icon drawn in a status color.
func mark(c install.Color, icon, msg string) string {
	return colorStyle(c).Render(icon) + " " + msg
}

func printSuccess(format string, args ...any) {
	fmt.Println(mark(install.ColorGreen, iconSuccess, fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Println(mark(install.ColorRed, iconError, fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Println(mark(install.ColorYellow, iconWarning, StyleWarning.Render(fmt.Sprintf(format, args...))))
}

func printInfo(format string, args ...any) {
	fmt.Println(mark(install.ColorDefault, iconInfo, fmt.Sprintf(format, args...)))
}

// printDetail prints an indented secondary line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printPath points at a file or directory a command wrote to.
func printPath(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printField prints one labeled descriptor field.
func printField(key, value string) {
	fmt.Println(styleFieldKey.Render(key) + " " + StyleValue.Render(value))
}

// statusLine formats the transitions of a tracked version that line mode
// shows. Other transitions return "".
func statusLine(ev install.StatusEvent) string {
	icon := stateIcon(ev.State)
	switch ev.State {
	case install.AwaitingUserInteraction:
		return mark(ev.Color, icon, fmt.Sprintf("%s %s: following download page %s", ev.UID, ev.Version, StyleLink.Render(ev.URL)))
	case install.Completed:
		return mark(ev.Color, icon, fmt.Sprintf("%s %s", ev.UID, StyleDim.Render(strings.TrimSpace(ev.Version+" "+ev.Message))))
	case install.Failed:
		return mark(ev.Color, icon, fmt.Sprintf("%s %s: %s", ev.UID, ev.Version, ev.Message))
	}
	return ""
}

func printStatus(ev install.StatusEvent) {
	if line := statusLine(ev); line != "" {
		fmt.Println(line)
	}
}

// resolutionStats summarizes a resolution on one line.
func resolutionStats(res *resolve.Result) string {
	sep := StyleDim.Render(" · ")
	status := colorStyle(install.ColorGreen).Render("complete")
	if n := len(res.Failures); n > 0 {
		status = colorStyle(install.ColorRed).Render(fmt.Sprintf("%d failed", n))
	}
	return "  " + StyleDim.Render(fmt.Sprintf("%d mods", len(res.Mods))) + sep +
		StyleDim.Render(fmt.Sprintf("%d fetched", res.Fetches)) + sep + status
}

// printNextStep suggests the command to run next.
func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

func printNewline() {
	fmt.Println()
}
