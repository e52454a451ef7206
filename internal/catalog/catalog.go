// Package catalog extracts the ordered episode list of a series page
package catalog

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/retry"
	"github.com/alvarorichard/animebinge/internal/util"
)

// ErrEmptyCatalog is returned when no episode links appeared after every attempt
var ErrEmptyCatalog = errors.New("no episodes found on page")

// DefaultSchedule waits for the episode list to be rendered by the site's scripts
var DefaultSchedule = retry.Schedule{2 * time.Second, 4 * time.Second, 6 * time.Second}

var episodeParam = regexp.MustCompile(`[?&]ep=(\d+)`)

// Source provides the rendered page to extract from
type Source interface {
	Content(ctx context.Context) (string, error)
	URL() string
}

// Extract returns the episodes linked from pageContent, deduplicated by id
// and sorted by numeric id. Relative links resolve against pageURL.
func Extract(pageContent, pageURL string) []models.Episode {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageContent))
	if err != nil {
		util.Debug("Failed to parse page content", "error", err)
		return []models.Episode{}
	}

	seen := make(map[string]struct{})
	episodes := make([]models.Episode, 0, 32)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := episodeParam.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		title := strings.Join(strings.Fields(s.Text()), " ")
		if title == "" {
			title = "Episode " + id
		}
		episodes = append(episodes, models.Episode{
			ID:    id,
			URL:   ResolveURL(pageURL, href),
			Title: title,
		})
	})

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].NumericID() < episodes[j].NumericID()
	})
	for i := range episodes {
		episodes[i].Ordinal = i
	}
	return episodes
}

// CurrentEpisodeID reads the ep query parameter of pageURL, or "" when absent
func CurrentEpisodeID(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	id := u.Query().Get("ep")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return ""
	}
	return id
}

// IndexOf returns the position of the episode with id, or -1
func IndexOf(episodes []models.Episode, id string) int {
	if id == "" {
		return -1
	}
	for i, ep := range episodes {
		if ep.ID == id {
			return i
		}
	}
	return -1
}

// ResolveURL resolves ref against base; ref is returned as is when either fails to parse
func ResolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// Extractor retries extraction while the page is still rendering
type Extractor struct {
	Schedule retry.Schedule
}

// NewExtractor returns an extractor using DefaultSchedule
func NewExtractor() *Extractor {
	return &Extractor{Schedule: DefaultSchedule}
}

// Extract polls src until episodes appear. After the last attempt it returns
// an empty catalog and ErrEmptyCatalog.
func (x *Extractor) Extract(ctx context.Context, src Source) ([]models.Episode, error) {
	schedule := x.Schedule
	if schedule == nil {
		schedule = DefaultSchedule
	}

	var episodes []models.Episode
	err := retry.Do(ctx, schedule, func(ctx context.Context, attempt int) error {
		content, err := src.Content(ctx)
		if err != nil {
			util.Debug("Page content unavailable", "attempt", attempt+1, "error", err)
			return err
		}
		episodes = Extract(content, src.URL())
		if len(episodes) == 0 {
			util.Debug("No episodes yet", "attempt", attempt+1)
			return ErrEmptyCatalog
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return []models.Episode{}, ctxErr
		}
		return []models.Episode{}, ErrEmptyCatalog
	}

	util.Debug("Episodes extracted", "count", len(episodes))
	return episodes, nil
}
