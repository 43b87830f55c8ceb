package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up     key.Binding
	down   key.Binding
	submit key.Binding
	focus  key.Binding
	back   key.Binding
	cancel key.Binding
	open   key.Binding
	reload key.Binding
	help   key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "resolve")),
		focus:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
		back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "search")),
		cancel: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel query")),
		open:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "play result")),
		reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload resolver")),
		help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.focus, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.submit},
		{k.focus, k.back, k.cancel, k.open},
		{k.reload, k.help, k.quit},
	}
}
