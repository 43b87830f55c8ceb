package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/pipeline"
	"github.com/desertthunder/trackpipe/internal/shared"
	tu "github.com/desertthunder/trackpipe/internal/testing"
)

func newTestModel(t *testing.T) (*Model, *pipeline.Pipeline) {
	t.Helper()
	p := pipeline.New(pipeline.WithLogger(shared.NewLogger(nil)))
	t.Cleanup(func() { p.Close() })
	m := NewModel(context.Background(), p, nil)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m, p
}

// drain feeds query messages back into m until the current query is done.
func drain(t *testing.T, m *Model) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for m.updates != nil {
		msgs := make(chan tea.Msg, 1)
		go func() { msgs <- m.waitForUpdate()() }()
		select {
		case msg := <-msgs:
			m.Update(msg)
		case <-deadline:
			t.Fatal("query did not finish")
		}
	}
}

func press(m *Model, s string) {
	switch s {
	case "tab":
		m.Update(tea.KeyMsg{Type: tea.KeyTab})
	case "enter":
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	case "esc":
		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	default:
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	}
}

func TestModelResolve(t *testing.T) {
	t.Run("results arrive sorted", func(t *testing.T) {
		m, p := newTestModel(t)
		fake := tu.NewFakeResolver("A", 100, p)
		fake.Respond = func(q *models.Query) []*models.Result {
			return []*models.Result{
				tu.ScoredResult("A", "https://a.example/low.mp3", q.Artist, q.Track, 0.5),
				tu.ScoredResult("A", "https://a.example/high.mp3", q.Artist, q.Track, 0.9),
			}
		}
		fake.Start()

		m.input.SetValue("Air - Talisman")
		press(m, "enter")
		drain(t, m)

		qs := fake.Queries()
		if len(qs) != 1 || qs[0].Artist != "Air" || qs[0].Track != "Talisman" {
			t.Fatalf("unexpected dispatched queries %+v", qs)
		}
		items := m.results.Items()
		if len(items) != 2 {
			t.Fatalf("expected 2 results, got %d", len(items))
		}
		if top := items[0].(resultItem).result; top.Score != 0.9 {
			t.Errorf("expected the best result first, got %v", top.Score)
		}
		if !strings.Contains(m.status, "playable") {
			t.Errorf("unexpected status %q", m.status)
		}
	})

	t.Run("blank input is ignored", func(t *testing.T) {
		m, _ := newTestModel(t)
		m.input.SetValue("   ")
		press(m, "enter")
		if m.sub != nil {
			t.Error("blank input should not submit")
		}
	})

	t.Run("new query replaces the old one", func(t *testing.T) {
		m, p := newTestModel(t)
		tu.NewFakeResolver("silent", 100, p).WithTimeout(time.Hour).Start()

		m.submit("first query")
		first := m.sub
		m.submit("second query")

		select {
		case <-first.Done():
		case <-time.After(time.Second):
			t.Fatal("first query should be cancelled")
		}
		if !first.Cancelled() {
			t.Error("first query should report cancellation")
		}

		before := m.status
		m.Update(queryUpdateMsg(first, pipeline.Update{Resolver: "silent"}))
		if m.status != before {
			t.Error("updates for a replaced query should be ignored")
		}
	})

	t.Run("cancel key", func(t *testing.T) {
		m, p := newTestModel(t)
		tu.NewFakeResolver("silent", 100, p).WithTimeout(time.Hour).Start()

		m.submit("Air - Talisman")
		press(m, "tab")
		press(m, "x")
		drain(t, m)

		if !m.sub.Cancelled() {
			t.Error("expected the query to be cancelled")
		}
		if !strings.HasPrefix(m.status, "cancelled") {
			t.Errorf("unexpected status %q", m.status)
		}
	})
}

func TestModelPlay(t *testing.T) {
	m, p := newTestModel(t)
	var opened []string
	m.open = func(url string) error {
		opened = append(opened, url)
		return nil
	}
	fake := tu.NewFakeResolver("A", 100, p)
	fake.Respond = func(q *models.Query) []*models.Result {
		return []*models.Result{tu.ScoredResult("A", "https://a.example/talisman.mp3", q.Artist, q.Track, 0.9)}
	}
	fake.Start()

	m.submit("Air - Talisman")
	drain(t, m)
	press(m, "tab")
	press(m, "o")

	if len(opened) != 1 || opened[0] != "https://a.example/talisman.mp3" {
		t.Fatalf("unexpected opened URLs %v", opened)
	}
	if !strings.HasPrefix(m.status, "playing Talisman") {
		t.Errorf("unexpected status %q", m.status)
	}

	m.open = func(string) error { return errors.New("no handler") }
	press(m, "o")
	if m.err == nil || !strings.Contains(m.View(), "no handler") {
		t.Error("open failures should be shown")
	}
}

func TestModelFocus(t *testing.T) {
	m, _ := newTestModel(t)
	if m.focus != SearchFocus || !m.input.Focused() {
		t.Fatal("search should start focused")
	}

	press(m, "q")
	if m.input.Value() != "q" {
		t.Errorf("q should be typed into the search box, got %q", m.input.Value())
	}

	press(m, "tab")
	if m.focus != ResultsFocus || m.input.Focused() {
		t.Error("tab should move to results")
	}
	press(m, "tab")
	if m.focus != ResolversFocus {
		t.Error("tab should move to resolvers")
	}
	press(m, "tab")
	if m.focus != SearchFocus {
		t.Error("tab should wrap to search")
	}

	press(m, "tab")
	press(m, "esc")
	if m.focus != SearchFocus {
		t.Error("esc should return to search")
	}

	press(m, "tab")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q outside the search box should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected a quit message")
	}
}

func TestModelResolvers(t *testing.T) {
	m, p := newTestModel(t)
	tu.NewFakeResolver("low", 10, p).Start()
	tu.NewFakeResolver("high", 90, p).Start()

	msg := m.fetchResolvers()()
	m.Update(msg)

	items := m.resolverList.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 resolvers, got %d", len(items))
	}
	if first := items[0].(resolverItem); first.status.Name != "high" {
		t.Errorf("expected ranked order, got %s first", first.status.Name)
	}

	m.setFocus(ResolversFocus)
	press(m, "r")
	if !strings.Contains(m.status, "cannot be reloaded") {
		t.Errorf("unexpected status %q", m.status)
	}

	if view := m.View(); !strings.Contains(view, "trackpipe") || !strings.Contains(view, "high") {
		t.Error("view should render the title and resolver pane")
	}
}
