package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan
	colorAccent    = lipgloss.Color("#F59E0B") // Amber
	colorDefault   = lipgloss.Color("#9CA3AF") // Light gray

	colorBorder       = lipgloss.Color("#4B5563")
	colorBorderActive = lipgloss.Color("#7C3AED")
	colorText         = lipgloss.Color("#F3F4F6")
	colorTextMuted    = lipgloss.Color("#9CA3AF")
	colorSuccess      = lipgloss.Color("#10B981")
	colorWarning      = lipgloss.Color("#F59E0B")
	colorError        = lipgloss.Color("#EF4444")
)

// AgentColor returns the display color for an agent's configured hex color.
func AgentColor(hex string) lipgloss.Color {
	if len(hex) == 7 && hex[0] == '#' {
		return lipgloss.Color(hex)
	}
	return colorDefault
}

// Styles holds all the application styles.
type Styles struct {
	Header  lipgloss.Style
	HelpBar lipgloss.Style

	Panel        lipgloss.Style
	PanelHeader  lipgloss.Style
	PanelFocused lipgloss.Style

	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Label    lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style

	AgentName  lipgloss.Style
	PhaseLabel lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			BorderStyle(lipgloss.DoubleBorder()).
			BorderBottom(true).
			BorderForeground(colorBorder).
			Padding(0, 1),

		HelpBar: lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Padding(0, 1),

		Panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1),

		PanelHeader: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorBorder),

		PanelFocused: lipgloss.NewStyle().
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary),

		Subtitle: lipgloss.NewStyle().
			Foreground(colorSecondary),

		Label: lipgloss.NewStyle().
			Foreground(colorTextMuted),

		Muted: lipgloss.NewStyle().
			Foreground(colorTextMuted),

		Error: lipgloss.NewStyle().
			Foreground(colorError),

		Success: lipgloss.NewStyle().
			Foreground(colorSuccess),

		Warning: lipgloss.NewStyle().
			Foreground(colorWarning),

		AgentName: lipgloss.NewStyle().
			Bold(true),

		PhaseLabel: lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true),
	}
}

// AgentNameStyle returns the agent name style in the agent's color.
func (s Styles) AgentNameStyle(hex string) lipgloss.Style {
	return s.AgentName.Foreground(AgentColor(hex))
}
