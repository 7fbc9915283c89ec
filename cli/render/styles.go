package render

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

// Styles for table output.
var (
	// TitleStyle for section headers.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// SuccessStyle for completed outcomes.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// ErrorStyle for aborted outcomes.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// MutedStyle for secondary detail.
	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// Outcome renders a run outcome with status coloring.
func Outcome(outcome string, noColor bool) string {
	if noColor {
		return outcome
	}
	if outcome == "complete" {
		return SuccessStyle.Render(outcome)
	}
	return ErrorStyle.Render(outcome)
}
