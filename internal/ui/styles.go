package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF5F5F")
	ColorGreen   = lipgloss.Color("#5FD787")
	ColorYellow  = lipgloss.Color("#FFD75F")
	ColorCyan    = lipgloss.Color("#00D7FF")
	ColorBlue    = lipgloss.Color("#5F87FF")
	ColorGray    = lipgloss.Color("#808080")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#D75FD7")
)

// Base styles reused by UI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	PanelTitleActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	// PendingStyle marks optimistic history entries the server has not
	// confirmed yet.
	PendingStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Italic(true)

	PromptStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true)

	SourceTitleStyle = lipgloss.NewStyle().
				Foreground(ColorWhite).
				Bold(true)

	LinkStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Underline(true)

	NotesStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	ProgressFillStyle = lipgloss.NewStyle().
				Foreground(ColorCyan)

	ProgressDoneStyle = lipgloss.NewStyle().
				Foreground(ColorGreen)

	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(ColorDimGray)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)
)
