// Package eventlog provides the console's scrollable log pane.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/breaktools/meffec/internal/theme"
	"github.com/charmbracelet/lipgloss"
)

const maxEntries = 500

// Entry is a single log line.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
}

// Model holds log pane state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset (from bottom)
}

func New() Model {
	return Model{}
}

// Add appends an entry and caps the buffer.
func (m *Model) Add(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	max := len(m.Entries) - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
}

func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// View renders the newest entries that fit in height lines.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visible := height - 3
	if visible < 1 {
		visible = 1
	}

	title := theme.StyleHeader.Render("LOG")
	if len(m.Entries) == 0 {
		return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, theme.StyleDimmed.Render("No events recorded yet.")))
	}

	end := len(m.Entries) - m.Offset
	start := end - visible
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05"))
		lvl := lipgloss.NewStyle().Foreground(theme.LevelColor(e.Level)).Width(5).Render(e.Level)
		msg := e.Message
		if room := innerW - 16; len(msg) > room && room > 3 {
			msg = msg[:room-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, lvl, msg))
	}

	if m.Offset > 0 {
		title += theme.StyleDimmed.Render(fmt.Sprintf("  ↓ %d more", m.Offset))
	}
	return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

func panel(width int) lipgloss.Style {
	return theme.StyleBorder.Width(width).Padding(0, 1)
}
