package main

import "github.com/charmbracelet/lipgloss"

// Status colors shared by doctor and history output.
var (
	colorSuccess = lipgloss.Color("#8BC34A")
	colorError   = lipgloss.Color("#e53935")
	colorWarning = lipgloss.Color("#FFC107")
	colorInfo    = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#9E9E9E")

	okStyle      = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	headingStyle = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	labelStyle   = lipgloss.NewStyle().Width(14)
)

func okMark() string   { return okStyle.Render("✓") }
func failMark() string { return failStyle.Render("✗") }
func warnMark() string { return warnStyle.Render("!") }
