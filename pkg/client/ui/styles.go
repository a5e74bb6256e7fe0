package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// Color scheme
	PrimaryColor = lipgloss.Color("39")  // Blue
	SuccessColor = lipgloss.Color("42")  // Green
	ErrorColor   = lipgloss.Color("196") // Red
	MutedColor   = lipgloss.Color("243") // Gray
	BorderColor  = lipgloss.Color("238") // Dark gray

	BaseStyle = lipgloss.NewStyle()

	HeaderStyle = BaseStyle.
			Bold(true).
			Foreground(PrimaryColor).
			Padding(0, 1)

	StatusStyle = BaseStyle.
			Foreground(MutedColor).
			Padding(0, 1)

	ErrorStyle = BaseStyle.
			Foreground(ErrorColor).
			Padding(0, 1)

	AuthorStyle = BaseStyle.
			Bold(true).
			Foreground(PrimaryColor)

	TimestampStyle = BaseStyle.
			Foreground(MutedColor)

	MessageIDStyle = BaseStyle.
			Foreground(SuccessColor)

	ReplyPrefixStyle = BaseStyle.
				Foreground(MutedColor)

	InputStyle = BaseStyle.
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(BorderColor)

	FooterStyle = BaseStyle.
			Foreground(MutedColor).
			Padding(0, 1)

	ShortcutKeyStyle = BaseStyle.
				Foreground(PrimaryColor).
				Bold(true)
)
