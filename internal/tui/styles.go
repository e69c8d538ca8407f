package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Primary   = lipgloss.Color("205")
	Secondary = lipgloss.Color("86")
	Subtle    = lipgloss.Color("241")
	Success   = lipgloss.Color("46")
	Error     = lipgloss.Color("196")

	// Header styles
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(Primary).
			Padding(0, 2).
			Align(lipgloss.Center)

	// Section styles
	SectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Subtle).
			Padding(0, 1)

	SectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				MarginBottom(1)

	// Label and value styles
	LabelStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			Width(10)

	ValueStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	// Row styles
	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	// Dim style
	DimStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			Italic(true)

	// Help style
	HelpStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			MarginTop(1)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	// Table styles
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Subtle)
)

// RenderRow colours a result row: red when the target failed, green
// otherwise.
func RenderRow(failed bool, line string) string {
	if failed {
		return ErrorStyle.Render(line)
	}
	return SuccessStyle.Render(line)
}
