package status

import (
	"fmt"

	"github.com/breaktools/meffec/internal/client"
	"github.com/breaktools/meffec/internal/theme"
	"github.com/charmbracelet/lipgloss"
)

// Model holds the status bar state.
type Model struct {
	State     client.State
	ServerURL string
	Clients   int
	Effects   int
	Width     int
}

func New(serverURL string) Model {
	return Model{ServerURL: serverURL}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch m.State {
	case client.Connected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	case client.Connecting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◌ Connecting...")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Disconnected")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + theme.StyleDimmed.Render(m.ServerURL) + sep +
		fmt.Sprintf("%d clients  %d effects", m.Clients, m.Effects)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
