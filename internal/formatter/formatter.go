// package formatter renders queries, results, resolver listings and collection tracks as tables, CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/resolvers"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatTable, FormatCSV, FormatMarkdown, FormatText, FormatJSON}

// ParseFormat validates s, accepting "md" and "txt" as aliases. An empty string is [FormatTable].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// ResultView is the JSON shape of a [models.Result].
type ResultView struct {
	ID       string  `json:"id"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album,omitempty"`
	Track    string  `json:"track"`
	URL      string  `json:"url"`
	Source   string  `json:"source"`
	Score    float64 `json:"score"`
	Playable bool    `json:"playable"`
	Mimetype string  `json:"mimetype"`
	Duration uint    `json:"duration,omitempty"`
	Bitrate  uint    `json:"bitrate,omitempty"`
	Size     uint64  `json:"size,omitempty"`
	Year     uint    `json:"year,omitempty"`
}

// QueryView is the JSON shape of a [models.Query] with its results sorted best first.
type QueryView struct {
	ID       string       `json:"qid"`
	Artist   string       `json:"artist,omitempty"`
	Track    string       `json:"track,omitempty"`
	Album    string       `json:"album,omitempty"`
	FullText string       `json:"fulltext,omitempty"`
	Resolved bool         `json:"resolved"`
	Playable bool         `json:"playable"`
	Results  []ResultView `json:"results"`
}

// NewResultView flattens r.
func NewResultView(r *models.Result) ResultView {
	return ResultView{
		ID:       r.ID,
		Artist:   r.ArtistName(),
		Album:    r.AlbumName(),
		Track:    r.Track,
		URL:      r.URL,
		Source:   r.Source,
		Score:    r.Score,
		Playable: r.Playable(),
		Mimetype: r.Mimetype,
		Duration: r.Duration,
		Bitrate:  r.Bitrate,
		Size:     r.Size,
		Year:     r.Year,
	}
}

// NewQueryView flattens q and its sorted results.
func NewQueryView(q *models.Query) QueryView {
	results := q.SortedResults()
	views := make([]ResultView, len(results))
	for i, r := range results {
		views[i] = NewResultView(r)
	}
	return QueryView{
		ID:       q.ID,
		Artist:   q.Artist,
		Track:    q.Track,
		Album:    q.Album,
		FullText: q.FullText,
		Resolved: q.Resolved(),
		Playable: q.Playable(),
		Results:  views,
	}
}

// Results renders the sorted results of q.
func Results(q *models.Query, f Format) ([]byte, error) {
	if f == FormatJSON {
		return marshal(NewQueryView(q))
	}

	results := q.SortedResults()
	if f == FormatText {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "Query: %s\n", q)
		fmt.Fprintf(&buf, "Results: %d\n\n", len(results))
		for i, r := range results {
			fmt.Fprintf(&buf, "%d. %s - %s [%s, %.2f] %s\n", i+1, r.ArtistName(), r.Track, r.Source, r.Score, r.URL)
		}
		return buf.Bytes(), nil
	}

	tw := newTable(f)
	tw.AppendHeader(table.Row{"#", "Artist", "Track", "Album", "Source", "Score", "Duration", "URL"})
	for i, r := range results {
		tw.AppendRow(table.Row{
			i + 1,
			r.ArtistName(),
			r.Track,
			r.AlbumName(),
			r.Source,
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			shared.FormatDuration(int(r.Duration)),
			r.URL,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	return render(tw, f)
}

// Queries renders one row per query with its best playable result.
func Queries(queries []*models.Query, f Format) ([]byte, error) {
	if f == FormatJSON {
		views := make([]QueryView, len(queries))
		for i, q := range queries {
			views[i] = NewQueryView(q)
		}
		return marshal(views)
	}

	if f == FormatText {
		var buf bytes.Buffer
		for i, q := range queries {
			if best := bestResult(q); best != nil {
				fmt.Fprintf(&buf, "%d. %s → %s (%s)\n", i+1, q, best.URL, best.Source)
			} else {
				fmt.Fprintf(&buf, "%d. %s → not found\n", i+1, q)
			}
		}
		return buf.Bytes(), nil
	}

	tw := newTable(f)
	tw.AppendHeader(table.Row{"#", "Query", "Found", "Source", "Score", "URL"})
	for i, q := range queries {
		row := table.Row{i + 1, q.String(), "no", "", "", ""}
		if best := bestResult(q); best != nil {
			row = table.Row{i + 1, q.String(), "yes", best.Source, strconv.FormatFloat(best.Score, 'f', 2, 64), best.URL}
		}
		tw.AppendRow(row)
	}
	return render(tw, f)
}

// Resolvers renders resolver statuses in the given order.
func Resolvers(statuses []resolvers.Status, f Format) ([]byte, error) {
	if f == FormatJSON {
		return marshal(statuses)
	}

	if f == FormatText {
		var buf bytes.Buffer
		for i, s := range statuses {
			fmt.Fprintf(&buf, "%d. %s (%s) weight=%d state=%s\n", i+1, s.Name, s.Kind, s.Weight, s.State)
		}
		return buf.Bytes(), nil
	}

	tw := newTable(f)
	tw.AppendHeader(table.Row{"#", "Name", "Kind", "State", "Weight", "Preference", "Timeout", "Restarts", "Error"})
	for i, s := range statuses {
		tw.AppendRow(table.Row{i + 1, s.Name, s.Kind, s.State.String(), s.Weight, s.Preference, s.Timeout.Round(time.Millisecond), s.Restarts, s.Error})
	}
	return render(tw, f)
}

// Collection renders local collection tracks.
func Collection(tracks []*models.CollectionTrack, f Format) ([]byte, error) {
	if f == FormatJSON {
		return marshal(tracks)
	}

	if f == FormatText {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "Tracks: %d\n\n", len(tracks))
		for i, t := range tracks {
			fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, t.Artist, t.Track)
		}
		return buf.Bytes(), nil
	}

	tw := newTable(f)
	tw.AppendHeader(table.Row{"ID", "Artist", "Album", "Track", "Duration", "URL"})
	for _, t := range tracks {
		tw.AppendRow(table.Row{t.ID, t.Artist, t.Album, t.Track, shared.FormatDuration(int(t.Duration)), t.URL})
	}
	return render(tw, f)
}

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func newTable(f Format) table.Writer {
	tw := table.NewWriter()
	if f == FormatTable {
		tw.SetStyle(table.StyleRounded)
	}
	return tw
}

func render(tw table.Writer, f Format) ([]byte, error) {
	switch f {
	case FormatTable:
		return []byte(tw.Render() + "\n"), nil
	case FormatCSV:
		return []byte(tw.RenderCSV() + "\n"), nil
	case FormatMarkdown:
		return []byte(tw.RenderMarkdown() + "\n"), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, f)
	}
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

func bestResult(q *models.Query) *models.Result {
	for _, r := range q.SortedResults() {
		if r.Playable() {
			return r
		}
	}
	return nil
}
