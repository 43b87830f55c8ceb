package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/trackpipe/internal/resolvers"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	pane  lipgloss.Style
	focus lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	border := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		pane:  border.BorderForeground(lipgloss.Color(h)),
		focus: border.BorderForeground(lipgloss.Color(t)),
	}
}

// State colors a resolver state: ready is green, starting amber, error red, stopped muted.
func (p *Palette) State(st resolvers.State) string {
	switch st {
	case resolvers.StateReady:
		return p.ok.Render(st.String())
	case resolvers.StateStarting:
		return p.warn.Render(st.String())
	case resolvers.StateError:
		return p.err.Render(st.String())
	default:
		return p.help.Render(st.String())
	}
}

// Pane frames content, highlighting the border when focused.
func (p *Palette) Pane(content string, focused bool) string {
	if focused {
		return p.focus.Render(content)
	}
	return p.pane.Render(content)
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
