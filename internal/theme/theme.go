// Package theme provides the Lip Gloss color palette and reusable styles
// for the Meffec console. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Role colors.
var (
	ColorController = lipgloss.Color("#a855f7")
	ColorApp        = lipgloss.Color("#3b82f6")
	ColorDevice     = lipgloss.Color("#d97706")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// Log level colors.
var (
	ColorDebug = lipgloss.Color("#4b5563")
	ColorInfo  = lipgloss.Color("#2563eb")
	ColorWarn  = lipgloss.Color("#d97706")
	ColorError = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder   = lipgloss.Color("#4b5563")
	ColorDimmed   = lipgloss.Color("#6b7280")
	ColorBright   = lipgloss.Color("#f9fafb")
	ColorCategory = lipgloss.Color("#06b6d4")
	ColorHealthy  = lipgloss.Color("#22c55e")
	ColorWarning  = lipgloss.Color("#d97706")
	ColorDanger   = lipgloss.Color("#dc2626")
)

// RoleColor returns the color for a roster entry's role.
func RoleColor(role string) lipgloss.Color {
	switch role {
	case "controller":
		return ColorController
	case "app":
		return ColorApp
	case "device":
		return ColorDevice
	default:
		return ColorDefault
	}
}

// LevelColor returns the color for a zerolog level name.
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "debug", "trace":
		return ColorDebug
	case "info":
		return ColorInfo
	case "warn":
		return ColorWarn
	case "error", "fatal", "panic":
		return ColorError
	default:
		return ColorDefault
	}
}

// RoleGlyph returns a glyph for a roster entry's role.
func RoleGlyph(role string) string {
	switch role {
	case "controller":
		return "★"
	case "app":
		return "▣"
	case "device":
		return "⚙"
	default:
		return "?"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleCategory = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorCategory)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)
)
