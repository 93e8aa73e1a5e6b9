// Package ux provides the terminal styling for cmd/chainforge's output
// renderer, adapted from pkg/ux/output.go's richer personality-aware color
// palette down to the handful of styles this CLI's stage-by-stage
// rendering needs: an agent header, a fallback notice, an accounting
// summary line, and an error line.
package ux

import "github.com/charmbracelet/lipgloss"

var (
	ColorAgent   = lipgloss.Color("#20B9B4")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#6C7A80")
)

// Styles holds every lipgloss.Style cmd/chainforge's renderer applies.
// lipgloss degrades to plain text automatically when stdout isn't a
// terminal (piped output, `go test` buffers), so these Renders are safe to
// call unconditionally rather than gating on an isatty check first.
var Styles = struct {
	AgentHeader lipgloss.Style
	Fallback    lipgloss.Style
	Accounting  lipgloss.Style
	Error       lipgloss.Style
}{
	AgentHeader: lipgloss.NewStyle().Bold(true).Foreground(ColorAgent),
	Fallback:    lipgloss.NewStyle().Foreground(ColorWarning),
	Accounting:  lipgloss.NewStyle().Foreground(ColorMuted),
	Error:       lipgloss.NewStyle().Foreground(ColorError),
}
