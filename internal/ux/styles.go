// Package ux renders the terminal surfaces of the scraper: the intro, the
// ready prompt shown before the browser is driven, and the run summary.
package ux

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	Primary     = lipgloss.Color("#25D366") // green
	Accent      = lipgloss.Color("#128C7E") // teal
	Muted       = lipgloss.Color("#8696A0")
	Destructive = lipgloss.Color("#e53935")
	Warning     = lipgloss.Color("#FFC107")
)

// Styles used across the package.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	HintStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Accent).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().Padding(0, 1)

	FailedStyle = CellStyle.
			Foreground(Destructive)

	WarnStyle = CellStyle.
			Foreground(Warning)

	BorderStyle = lipgloss.NewStyle().Foreground(Muted)
)
