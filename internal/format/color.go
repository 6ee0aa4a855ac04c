package format

import (
	"github.com/charmbracelet/lipgloss"

	"dgxsim/pkg/simtypes"
)

// Status colors follow the convention used across all tools: Critical
// is red, Warning yellow, everything healthy green.
var (
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

// Colorize styles a status word according to its severity. Width
// computations must use VisibleWidth on the result; the escapes do not
// count toward alignment.
func Colorize(status simtypes.HealthStatus) string {
	switch status {
	case simtypes.HealthCritical:
		return criticalStyle.Render(string(status))
	case simtypes.HealthWarning:
		return warningStyle.Render(string(status))
	default:
		return okStyle.Render(string(status))
	}
}

// ColorizeWord styles an arbitrary word with the severity color of the
// given status, for statuses spelled differently than the health enum
// (Healthy, active, degraded).
func ColorizeWord(word string, status simtypes.HealthStatus) string {
	switch status {
	case simtypes.HealthCritical:
		return criticalStyle.Render(word)
	case simtypes.HealthWarning:
		return warningStyle.Render(word)
	default:
		return okStyle.Render(word)
	}
}
