package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/breaktools/meffec/internal/client"
	"github.com/breaktools/meffec/internal/protocol"
	"github.com/breaktools/meffec/internal/theme"
	"github.com/breaktools/meffec/internal/views/eventlog"
	"github.com/breaktools/meffec/internal/views/status"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Library is the effect index the console browses.
type Library interface {
	Reload() (protocol.Catalog, error)
}

// Player starts an effect by category and name.
type Player interface {
	Trigger(ctx context.Context, category, name string) error
}

// Publisher receives every new catalog so the relay stays current.
type Publisher interface {
	SetCatalog(protocol.Catalog) error
}

// --- Bubble Tea messages ---

// StateMsg reports a connection manager state change.
type StateMsg struct{ State client.State }

// RosterMsg delivers the relay's connected clients.
type RosterMsg struct{ Roster protocol.Roster }

// ReindexMsg asks the console to rescan the effects folder.
type ReindexMsg struct{}

// CatalogMsg carries the result of a rescan.
type CatalogMsg struct{ Catalog protocol.Catalog }

// LogMsg is one line for the log pane.
type LogMsg eventlog.Entry

type Options struct {
	Library   Library
	Player    Player
	Publisher Publisher
	ServerURL string
}

type item struct {
	category string
	effect   protocol.Effect
}

// Model is the root Bubble Tea model of the operator console.
type Model struct {
	library   Library
	player    Player
	publisher Publisher
	ctx       context.Context
	cancel    context.CancelFunc

	keys   KeyMap
	width  int
	height int

	items    []item
	selected int
	roster   protocol.Roster

	statusBar status.Model
	log       eventlog.Model
}

func New(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		library:   opts.Library,
		player:    opts.Player,
		publisher: opts.Publisher,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(opts.ServerURL),
		log:       eventlog.New(),
	}
}

// Init indexes the effects folder.
func (m Model) Init() tea.Cmd {
	return m.reindex()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		m.statusBar.State = msg.State
		return m, nil

	case RosterMsg:
		m.roster = msg.Roster
		m.statusBar.Clients = len(msg.Roster)
		return m, nil

	case ReindexMsg:
		return m, m.reindex()

	case CatalogMsg:
		m.setCatalog(msg.Catalog)
		return m, m.publish(msg.Catalog)

	case LogMsg:
		m.log.Add(eventlog.Entry(msg))
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		if len(m.items) > 0 {
			m.selected = (m.selected + 1) % len(m.items)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.items) > 0 {
			m.selected = (m.selected - 1 + len(m.items)) % len(m.items)
		}
		return m, nil

	case key.Matches(msg, m.keys.Run):
		if len(m.items) == 0 {
			return m, nil
		}
		it := m.items[m.selected]
		return m, m.run(it.category, it.effect.Name)

	case key.Matches(msg, m.keys.Reindex):
		return m, m.reindex()

	case key.Matches(msg, m.keys.LogUp):
		m.log.ScrollUp(5)
		return m, nil

	case key.Matches(msg, m.keys.LogDown):
		m.log.ScrollDown(5)
		return m, nil
	}

	return m, nil
}

func (m *Model) setCatalog(c protocol.Catalog) {
	m.items = nil
	for _, cat := range c {
		for _, e := range cat.Effects {
			m.items = append(m.items, item{category: cat.Name, effect: e})
		}
	}
	if m.selected >= len(m.items) {
		m.selected = 0
	}
	m.statusBar.Effects = len(m.items)
}

func (m Model) reindex() tea.Cmd {
	lib := m.library
	return func() tea.Msg {
		catalog, err := lib.Reload()
		if err != nil {
			return LogMsg{Level: "error", Message: "could not index effects: " + err.Error()}
		}
		return CatalogMsg{Catalog: catalog}
	}
}

func (m Model) publish(c protocol.Catalog) tea.Cmd {
	if m.publisher == nil {
		return nil
	}
	pub := m.publisher
	return func() tea.Msg {
		if err := pub.SetCatalog(c); err != nil {
			return LogMsg{Level: "warn", Message: "could not send catalog: " + err.Error()}
		}
		return nil
	}
}

func (m Model) run(category, name string) tea.Cmd {
	player, ctx := m.player, m.ctx
	return func() tea.Msg {
		if err := player.Trigger(ctx, category, name); err != nil {
			return LogMsg{Level: "error", Message: err.Error()}
		}
		return nil
	}
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	help := theme.StyleDimmed.Render("  j/k:navigate  enter:run  r:reindex  pgup/pgdn:log  q:quit")

	bodyHeight := m.height - 4 - 1
	topHeight := bodyHeight / 2
	if topHeight < 5 {
		topHeight = 5
	}
	rosterWidth := m.width / 3
	effectsWidth := m.width - rosterWidth

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderEffects(effectsWidth, topHeight),
		m.renderRoster(rosterWidth, topHeight),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		top,
		m.log.View(m.width, bodyHeight-topHeight),
		help,
	)
}

func (m Model) renderEffects(width, height int) string {
	lines := []string{theme.StyleHeader.Render("EFFECTS")}
	if len(m.items) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("No effects found"))
	}

	category := ""
	for i, it := range m.items {
		if it.category != category {
			category = it.category
			lines = append(lines, theme.StyleCategory.Render(category))
		}
		prefix := "   "
		name := it.effect.Name
		if i == m.selected {
			prefix = " > "
			name = theme.StyleSelected.Render(name)
		}
		line := prefix + name
		if it.effect.Description != "" {
			line += "  " + theme.StyleDimmed.Render(it.effect.Description)
		}
		lines = append(lines, line)
	}

	return pane(width, height).Render(strings.Join(clip(lines, height-2), "\n"))
}

func (m Model) renderRoster(width, height int) string {
	lines := []string{theme.StyleHeader.Render(fmt.Sprintf("CLIENTS (%d)", len(m.roster)))}
	if len(m.roster) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("No roster yet"))
	}
	for _, e := range m.roster {
		role := string(e.Type)
		name := e.Name
		if name == "" {
			name = "(unauthenticated)"
		}
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.RoleColor(role)).Render(theme.RoleGlyph(role)+" "+name)+
			" "+theme.StyleDimmed.Render(role))
	}
	return pane(width, height).Render(strings.Join(clip(lines, height-2), "\n"))
}

func pane(width, height int) lipgloss.Style {
	w := width - 2
	if w < 10 {
		w = 10
	}
	return theme.StyleBorder.Width(w).Height(height - 2).Padding(0, 1)
}

// clip keeps the first n lines.
func clip(lines []string, n int) []string {
	if n < 1 {
		n = 1
	}
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}
