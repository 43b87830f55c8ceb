package models

import (
	"strings"

	"github.com/desertthunder/trackpipe/internal/shared"
)

// ClampScore limits s to [0,1].
func ClampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// Score estimates how well artist/track answer q.
//
// Structured queries weigh the artist and track matches equally. Full-text queries compare the
// text against "artist track". Comparison is token overlap on normalized text, so an exact match
// scores 1 and a disjoint one scores 0.
func Score(q *Query, artist, track string) float64 {
	if q == nil {
		return 0
	}
	if q.IsFullText() {
		return overlap(q.FullText, artist+" "+track)
	}
	if q.Artist == "" {
		return overlap(q.Track, track)
	}
	return (overlap(q.Artist, artist) + overlap(q.Track, track)) / 2
}

// overlap is the share of want's tokens that appear in got.
func overlap(want, got string) float64 {
	wantTokens := strings.Fields(shared.NormalizeText(want))
	if len(wantTokens) == 0 {
		return 0
	}

	have := make(map[string]int)
	for _, tok := range strings.Fields(shared.NormalizeText(got)) {
		have[tok]++
	}

	matched := 0
	for _, tok := range wantTokens {
		if have[tok] > 0 {
			have[tok]--
			matched++
		}
	}
	return float64(matched) / float64(len(wantTokens))
}
