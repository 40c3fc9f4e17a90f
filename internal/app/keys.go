package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the console.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Run     key.Binding
	Reindex key.Binding
	LogUp   key.Binding
	LogDown key.Binding
	Quit    key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev effect"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next effect"),
		),
		Run: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "run effect"),
		),
		Reindex: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reindex"),
		),
		LogUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll log"),
		),
		LogDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll log"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
