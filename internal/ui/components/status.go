// Package components provides shared interface elements for the portal
// console: status indicators and the error pane.
package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/warpspeed/portal/internal/interfaces"
)

// statusStyles maps status strings to their corresponding visual style.
var statusStyles = map[string]lipgloss.Style{
	"checking":        lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
	"online":          lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
	"offline":         lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387")),
	"unauthenticated": lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
	"success":         lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
	"error":           lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
	"info":            lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA")),
	"running":         lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
}

// statusIcons maps status strings to their corresponding icon.
var statusIcons = map[string]string{
	"checking":        "⏳",
	"online":          "●",
	"offline":         "○",
	"unauthenticated": "✗",
	"success":         "✅",
	"error":           "❌",
	"info":            "ℹ️",
	"running":         "🏃",
}

// RenderStatus formats a status message with an appropriate icon and color.
func RenderStatus(status, message string) string {
	style, exists := statusStyles[status]
	if !exists {
		style = lipgloss.NewStyle()
	}

	icon, exists := statusIcons[status]
	if !exists {
		icon = "🔹"
	}

	return style.Render(fmt.Sprintf("%s %s", icon, message))
}

// RenderSessionStatus renders the probe state for the status bar
func RenderSessionStatus(status interfaces.SessionStatus) string {
	label := status.State
	if label == "" {
		label = "checking"
	}

	switch {
	case status.LastChecked.IsZero():
	case status.ResponseTime > 0:
		label = fmt.Sprintf("%s (%s)", label, status.ResponseTime.Round(time.Millisecond))
	default:
		label = fmt.Sprintf("%s at %s", label, status.LastChecked.Format("15:04:05"))
	}

	return RenderStatus(status.State, label)
}
