package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/desertthunder/trackpipe/internal/shared"
)

var (
	_ list.Item = resultItem{}
	_ list.Item = resolverItem{}
)

// resultItem wraps [models.Result] to implement [list.Item].
type resultItem struct {
	result *models.Result
}

func (i resultItem) FilterValue() string { return i.result.ArtistName() + " " + i.result.Track }
func (i resultItem) Title() string {
	title := fmt.Sprintf("%s - %s", i.result.ArtistName(), i.result.Track)
	if !i.result.Playable() {
		return styles.help.Render(title)
	}
	return title
}
func (i resultItem) Description() string {
	desc := fmt.Sprintf("%.2f • %s", i.result.Score, i.result.Source)
	if album := i.result.AlbumName(); album != "" {
		desc = fmt.Sprintf("%s • %s", desc, album)
	}
	if i.result.Duration > 0 {
		desc = fmt.Sprintf("%s • %s", desc, shared.FormatDuration(int(i.result.Duration)))
	}
	return fmt.Sprintf("%s • %s", desc, i.result.Mimetype)
}

// resolverItem wraps [resolvers.Status] to implement [list.Item].
type resolverItem struct {
	status   resolvers.Status
	resolver resolvers.Resolver
}

func (i resolverItem) FilterValue() string { return i.status.Name }
func (i resolverItem) Title() string {
	return fmt.Sprintf("%s %s", i.status.Name, styles.State(i.status.State))
}
func (i resolverItem) Description() string {
	desc := fmt.Sprintf("w%d p%d • %s", i.status.Weight, i.status.Preference, i.status.Timeout)
	if i.status.Restarts > 0 {
		desc = fmt.Sprintf("%s • %d restarts", desc, i.status.Restarts)
	}
	if i.status.Error != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.status.Error)
	}
	return desc
}

func resultItems(q *models.Query) []list.Item {
	results := q.SortedResults()
	items := make([]list.Item, len(results))
	for i, r := range results {
		items[i] = resultItem{result: r}
	}
	return items
}

func resolverItems(rs []resolvers.Resolver) []list.Item {
	items := make([]list.Item, len(rs))
	for i, r := range rs {
		items[i] = resolverItem{status: resolvers.StatusOf(r), resolver: r}
	}
	return items
}
