package domain

import (
	"fmt"
	"strings"
	"time"
)

// QuerySource identifies which upstream trigger produced a search request.
type QuerySource string

const (
	QuerySourceSonarr QuerySource = "sonarr"
	QuerySourceRadarr QuerySource = "radarr"
	QuerySourceManual QuerySource = "manual"
)

// SearchQuery describes one requested title. Identity is the normalized Key,
// which also serves as the cache key.
type SearchQuery struct {
	Title     string      `json:"title"`
	Season    int         `json:"season,omitempty"`
	Episode   int         `json:"episode,omitempty"`
	Year      int         `json:"year,omitempty"`
	Source    QuerySource `json:"source"`
	Requested time.Time   `json:"requested"`
}

// Key returns the normalized identity of the query: lowercased title with
// collapsed whitespace, followed by an episode code or year when present.
func (q SearchQuery) Key() string {
	title := strings.ToLower(strings.Join(strings.Fields(q.Title), " "))
	switch {
	case q.Season > 0 && q.Episode > 0:
		return fmt.Sprintf("%s s%02de%02d", title, q.Season, q.Episode)
	case q.Year > 0:
		return fmt.Sprintf("%s %d", title, q.Year)
	default:
		return title
	}
}

// EpisodeCode returns "SxxEyy" for episodic queries, empty otherwise.
func (q SearchQuery) EpisodeCode() string {
	if q.Season > 0 && q.Episode > 0 {
		return fmt.Sprintf("S%02dE%02d", q.Season, q.Episode)
	}
	return ""
}

// Display returns a human readable label for logs and package names.
func (q SearchQuery) Display() string {
	if code := q.EpisodeCode(); code != "" {
		return fmt.Sprintf("%s - %s", q.Title, code)
	}
	if q.Year > 0 {
		return fmt.Sprintf("%s (%d)", q.Title, q.Year)
	}
	return q.Title
}
