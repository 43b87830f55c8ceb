package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/pipeline"
	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/desertthunder/trackpipe/internal/tasks"
)

// DefaultRefresh is how often the resolver pane is redrawn.
const DefaultRefresh = time.Second

// Focus is the pane receiving key presses.
type Focus int

const (
	SearchFocus Focus = iota
	ResultsFocus
	ResolversFocus
)

// Pipeline is the part of [pipeline.Pipeline] the monitor drives.
type Pipeline interface {
	Resolve(q *models.Query) *pipeline.Subscription
	Cancel(qid string) bool
	Resolvers() []resolvers.Resolver
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	pipeline Pipeline
	// all lists every configured resolver, so stopped and failed ones stay visible.
	all     []resolvers.Resolver
	refresh time.Duration
	open    func(url string) error

	focus         Focus
	width, height int
	input         textinput.Model
	results       list.Model
	resolverList  list.Model

	sub     *pipeline.Subscription
	updates <-chan pipeline.Update
	status  string
	err     error

	help help.Model
	keys keyMap
}

// NewModel creates a monitor over p. all may be nil, in which case only resolvers registered
// with p are shown.
func NewModel(ctx context.Context, p Pipeline, all []resolvers.Resolver) *Model {
	input := textinput.New()
	input.Placeholder = "artist - track[ - album], or free text"
	input.Prompt = "› "
	input.CharLimit = 256
	input.Focus()

	return &Model{
		ctx:          ctx,
		pipeline:     p,
		all:          all,
		refresh:      DefaultRefresh,
		open:         shared.OpenURL,
		focus:        SearchFocus,
		input:        input,
		results:      newList("Results"),
		resolverList: newList("Resolvers"),
		status:       "type a query and press enter",
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

func newList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	return l
}

// Init starts the cursor blink and the first resolver refresh.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchResolvers())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateFocused(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgQueryUpdate:
		u := msg.data.(queryUpdate)
		if u.sub != m.sub {
			return m, nil
		}
		cmd := m.results.SetItems(resultItems(m.sub.Query()))
		m.status = fmt.Sprintf("%s answered with %d results", u.update.Resolver, len(u.update.Results))
		return m, tea.Batch(cmd, m.waitForUpdate())

	case MsgQueryDone:
		sub := msg.data.(*pipeline.Subscription)
		if sub != m.sub {
			return m, nil
		}
		m.status = describe(sub)
		m.updates = nil
		return m, m.results.SetItems(resultItems(sub.Query()))

	case MsgResolversRefreshed:
		rs := msg.data.([]resolvers.Resolver)
		cmd := m.resolverList.SetItems(resolverItems(rs))
		return m, tea.Batch(cmd, m.tick())

	case MsgRefreshTick:
		return m, m.fetchResolvers()
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.focus):
		m.setFocus((m.focus + 1) % 3)
		return m, nil
	}

	switch m.focus {
	case SearchFocus:
		return m.handleSearchKeys(msg)
	case ResultsFocus:
		return m.handleResultsKeys(msg)
	case ResolversFocus:
		return m.handleResolverKeys(msg)
	}
	return m, nil
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.submit):
		return m, m.submit(m.input.Value())
	case msg.String() == "esc":
		m.input.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleResultsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.setFocus(SearchFocus)
		return m, nil
	case key.Matches(msg, m.keys.cancel):
		m.cancel()
		return m, nil
	case key.Matches(msg, m.keys.open):
		m.play()
		return m, nil
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) handleResolverKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.setFocus(SearchFocus)
		return m, nil
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		item, ok := m.resolverList.SelectedItem().(resolverItem)
		if !ok {
			return m, nil
		}
		reloader, ok := item.resolver.(resolvers.Reloader)
		if !ok {
			m.status = fmt.Sprintf("%s cannot be reloaded", item.status.Name)
			return m, nil
		}
		go reloader.Reload()
		m.status = fmt.Sprintf("reloading %s", item.status.Name)
		return m, m.fetchResolvers()
	}

	var cmd tea.Cmd
	m.resolverList, cmd = m.resolverList.Update(msg)
	return m, cmd
}

func (m *Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case SearchFocus:
		m.input, cmd = m.input.Update(msg)
	case ResultsFocus:
		m.results, cmd = m.results.Update(msg)
	case ResolversFocus:
		m.resolverList, cmd = m.resolverList.Update(msg)
	}
	return m, cmd
}

// submit cancels the current query, if any, and resolves line.
func (m *Model) submit(line string) tea.Cmd {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	m.cancel()

	q := tasks.ParseQuery(line)
	m.sub = m.pipeline.Resolve(q)
	m.updates = m.sub.Updates()
	m.status = fmt.Sprintf("resolving %s", q)
	m.err = nil
	return tea.Batch(m.results.SetItems(nil), m.waitForUpdate())
}

func (m *Model) cancel() {
	if m.sub == nil {
		return
	}
	select {
	case <-m.sub.Done():
	default:
		m.pipeline.Cancel(m.sub.Query().ID)
	}
	m.sub.Unsubscribe()
}

// play opens the selected result with the desktop's default handler.
func (m *Model) play() {
	item, ok := m.results.SelectedItem().(resultItem)
	if !ok {
		return
	}
	if !item.result.Playable() {
		m.status = fmt.Sprintf("%s is not playable", item.result.Track)
		return
	}
	if err := m.open(item.result.URL); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.status = fmt.Sprintf("playing %s from %s", item.result.Track, item.result.Source)
}

func (m *Model) setFocus(f Focus) {
	m.focus = f
	if f == SearchFocus {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) layout() {
	h := max(m.height-8, 4)
	left := max(m.width*2/3-4, 10)
	right := max(m.width-left-8, 10)
	m.input.Width = max(m.width-6, 10)
	m.results.SetSize(left, h)
	m.resolverList.SetSize(right, h)
}

// waitForUpdate reads one update of the current query.
func (m *Model) waitForUpdate() tea.Cmd {
	sub, updates := m.sub, m.updates
	if sub == nil || updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case u, ok := <-updates:
			if !ok {
				return queryDoneMsg(sub)
			}
			return queryUpdateMsg(sub, u)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) fetchResolvers() tea.Cmd {
	return func() tea.Msg {
		if m.all != nil {
			return resolversRefreshedMsg(m.all)
		}
		return resolversRefreshedMsg(m.pipeline.Resolvers())
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return refreshTickMsg() })
}

func describe(sub *pipeline.Subscription) string {
	q := sub.Query()
	n := len(q.Results())
	switch {
	case sub.Cancelled():
		return fmt.Sprintf("cancelled %s with %d results", q, n)
	case q.Playable():
		return fmt.Sprintf("resolved %s: %d results, playable", q, n)
	default:
		return fmt.Sprintf("resolved %s: %d results, nothing playable", q, n)
	}
}

// View renders the search box, the two panes and help.
func (m *Model) View() string {
	title := styles.title.Render("trackpipe")
	search := styles.Pane(m.input.View(), m.focus == SearchFocus)

	status := styles.help.Render(m.status)
	if m.err != nil {
		status = styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	} else if m.sub != nil && m.sub.Query().Playable() {
		status = styles.ok.Render(m.status)
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Pane(m.results.View(), m.focus == ResultsFocus),
		styles.Pane(m.resolverList.View(), m.focus == ResolversFocus),
	)

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s", title, search, status, panes, m.help.View(m.keys))
}
