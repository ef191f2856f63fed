package search

import (
	"fmt"
	"strings"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
)

// Variants returns the provider query strings to try, most specific first.
// All variants are queried and their results merged: file hosters index
// episodic content under several naming conventions, so "Title S01E05",
// "Title 1x05" and the bare title each surface different uploads.
func Variants(query domain.SearchQuery) []string {
	title := strings.Join(strings.Fields(query.Title), " ")
	if title == "" {
		return nil
	}

	var variants []string
	if query.Season > 0 && query.Episode > 0 {
		variants = append(variants,
			fmt.Sprintf("%s S%02dE%02d", title, query.Season, query.Episode),
			fmt.Sprintf("%s %dx%02d", title, query.Season, query.Episode),
		)
	} else if query.Year > 0 {
		variants = append(variants, fmt.Sprintf("%s %d", title, query.Year))
	}
	variants = append(variants, title)
	return dedupeVariants(variants)
}

func dedupeVariants(variants []string) []string {
	seen := make(map[string]struct{}, len(variants))
	out := make([]string, 0, len(variants))
	for _, variant := range variants {
		key := strings.ToLower(variant)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, variant)
	}
	return out
}
