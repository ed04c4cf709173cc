package tui

import "github.com/charmbracelet/lipgloss"

var (
	textPrimaryColor     = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#CCCCCC"}
	textMutedColor       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"}
	textDescriptionColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	borderColor          = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}
	promptBorderColor    = lipgloss.AdaptiveColor{Light: "#3498DB", Dark: "#54A0FF"}

	statusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	statusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	statusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(textPrimaryColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(textMutedColor)
	detailStyle  = lipgloss.NewStyle().Foreground(textDescriptionColor)
	successStyle = lipgloss.NewStyle().Foreground(statusSuccessColor)
	warningStyle = lipgloss.NewStyle().Foreground(statusWarningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(statusErrorColor)

	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(promptBorderColor).
			Padding(0, 1)

	buttonStyle = lipgloss.NewStyle().
			Foreground(textPrimaryColor).
			Border(lipgloss.NormalBorder()).
			BorderForeground(borderColor).
			Padding(0, 1).
			MarginRight(1)

	logStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(borderColor)
)
