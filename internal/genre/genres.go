// Package genre picks the next series to watch from the site's genre listings
package genre

import (
	"regexp"
	"strings"

	"github.com/alvarorichard/animebinge/internal/models"
)

// Available lists the genres the site publishes listings for
var Available = []string{
	"Action", "Adventure", "Cars", "Comedy", "Dementia", "Demons",
	"Drama", "Ecchi", "Fantasy", "Game", "Harem", "Historical",
	"Horror", "Isekai", "Josei", "Kids", "Magic", "Martial Arts",
	"Mecha", "Military", "Music", "Mystery", "Parody", "Police",
	"Psychological", "Romance", "Samurai", "School", "Sci-Fi",
	"Seinen", "Shoujo", "Shoujo Ai", "Shounen", "Shounen Ai",
	"Slice of Life", "Space", "Sports", "Super Power", "Supernatural",
	"Thriller", "Vampire",
}

var whitespace = regexp.MustCompile(`\s+`)

// Slug turns a genre name into its listing path segment
func Slug(genre string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(genre)), "-")
}

// Canonical returns the listed spelling of genre, matching case-insensitively
// by name or slug.
func Canonical(genre string) (string, bool) {
	slug := Slug(genre)
	for _, g := range Available {
		if Slug(g) == slug {
			return g, true
		}
	}
	return "", false
}

// Normalize maps every known genre to its canonical spelling, drops the
// unknown ones and removes duplicates. The unknown names are returned too.
func Normalize(genres []string) (known, unknown []string) {
	known = make([]string, 0, len(genres))
	for _, g := range genres {
		if c, ok := Canonical(g); ok {
			known = append(known, c)
		} else if strings.TrimSpace(g) != "" {
			unknown = append(unknown, g)
		}
	}
	return models.UniqueGenres(known), unknown
}
