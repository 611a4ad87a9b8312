package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the TUI key bindings.
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Take    key.Binding
	Skip    key.Binding
	Snooze  key.Binding
	DoseNow key.Binding
	Archive key.Binding
	Restore key.Binding
	Filter  key.Binding
	Log     key.Binding
	Stats   key.Binding
	Refresh key.Binding
	Command key.Binding
	Back    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Take:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "take")),
		Skip:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip")),
		Snooze:  key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "snooze 15m")),
		DoseNow: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dose now")),
		Archive: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "archive")),
		Restore: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "restore")),
		Filter:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "filter")),
		Log:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "dose log")),
		Stats:   key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "stats")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Command: key.NewBinding(key.WithKeys("/", ":"), key.WithHelp("/", "command")),
		Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Take, k.Skip, k.Snooze, k.DoseNow, k.Command, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Filter, k.Refresh},
		{k.Take, k.Skip, k.Snooze, k.DoseNow},
		{k.Archive, k.Restore, k.Log, k.Stats},
		{k.Command, k.Back, k.Help, k.Quit},
	}
}
