package tasks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/protocol"
	"github.com/desertthunder/trackpipe/internal/shared"
)

// querySpec is one element of a JSON query list.
type querySpec struct {
	Artist   string `json:"artist"`
	Track    string `json:"track"`
	Album    string `json:"album"`
	FullText string `json:"fulltext"`
}

// ReadQueryList parses a list of queries.
//
// Three shapes are accepted:
//   - a JSON "playlist" message body, as sent by resolvers
//   - a JSON array of {artist, track, album, fulltext} objects
//   - plain text, one query per line as "artist - track" or "artist - track - album"
//
// In plain text, blank lines and lines starting with "#" are skipped, and a line without a
// separator becomes a full-text query.
func ReadQueryList(r io.Reader) ([]*models.Query, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read query list: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return nil, fmt.Errorf("%w: query list is empty", shared.ErrInvalidInput)
	case trimmed[0] == '{':
		return parsePlaylistMessage(trimmed)
	case trimmed[0] == '[':
		return parseQueryArray(trimmed)
	default:
		return parseQueryLines(trimmed)
	}
}

func parsePlaylistMessage(data []byte) ([]*models.Query, error) {
	msg, err := protocol.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	pl, ok := msg.(protocol.Playlist)
	if !ok {
		return nil, fmt.Errorf("%w: expected a playlist message, got %s", shared.ErrInvalidInput, msg.MsgType())
	}

	queries := make([]*models.Query, 0, len(pl.Playlist))
	for _, e := range pl.Playlist {
		if strings.TrimSpace(e.Track) == "" {
			continue
		}
		queries = append(queries, models.NewQuery(e.Artist, e.Track, ""))
	}
	return queries, nil
}

func parseQueryArray(data []byte) ([]*models.Query, error) {
	var specs []querySpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("%w: invalid query array: %v", shared.ErrInvalidInput, err)
	}

	queries := make([]*models.Query, 0, len(specs))
	for i, s := range specs {
		switch {
		case strings.TrimSpace(s.FullText) != "":
			queries = append(queries, models.NewFullTextQuery(s.FullText))
		case strings.TrimSpace(s.Track) != "":
			queries = append(queries, models.NewQuery(s.Artist, s.Track, s.Album))
		default:
			return nil, fmt.Errorf("%w: query %d has neither track nor fulltext", shared.ErrInvalidInput, i)
		}
	}
	return queries, nil
}

func parseQueryLines(data []byte) ([]*models.Query, error) {
	var queries []*models.Query
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, ParseQuery(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query list: %w", err)
	}
	return queries, nil
}

// ParseQuery reads "artist - track[ - album]". Anything without a separator is a fulltext query.
func ParseQuery(line string) *models.Query {
	line = strings.TrimSpace(line)
	parts := strings.SplitN(line, " - ", 3)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 1:
		return models.NewFullTextQuery(line)
	case 2:
		return models.NewQuery(parts[0], parts[1], "")
	default:
		return models.NewQuery(parts[0], parts[1], parts[2])
	}
}
