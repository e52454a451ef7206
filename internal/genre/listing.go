package genre

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/alvarorichard/animebinge/internal/catalog"
	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/util"
)

// errListingNotFound marks a genre page the site doesn't serve
var errListingNotFound = errors.New("genre listing not found")

// maxListingBytes bounds how much of a listing page is read
const maxListingBytes = 8 << 20

// Fetcher downloads a listing page
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches listings with the shared pooled client
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPFetcher returns a fetcher on util.GetSharedClient
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: util.GetSharedClient(), UserAgent: util.UserAgent}
}

// Fetch returns the page body. A 404 yields errListingNotFound; other
// non-2xx statuses and transport failures are returned as plain errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errListingNotFound
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("access restricted: %s", resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("server returned: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read listing")
	}
	return body, nil
}

// ListingURL returns the listing address of genre under base
func ListingURL(base, genre string) string {
	return strings.TrimRight(base, "/") + "/genre/" + Slug(genre)
}

// ParseListing returns the series linked from a listing page. Episode deep
// links are skipped and duplicates are removed.
func ParseListing(body []byte, pageURL, genre string) ([]models.Series, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}

	// poster anchors often come first with no text, so a later anchor for
	// the same series may still supply the title
	seen := make(map[string]int)
	var series []models.Series
	doc.Find(`a[href*="/watch/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.Contains(href, "ep=") {
			return
		}
		full := catalog.ResolveURL(pageURL, href)
		title := strings.TrimSpace(s.AttrOr("title", ""))
		if title == "" {
			title = strings.Join(strings.Fields(s.Text()), " ")
		}
		if i, dup := seen[full]; dup {
			if series[i].Title == "" {
				series[i].Title = title
			}
			return
		}
		seen[full] = len(series)
		series = append(series, models.Series{Title: title, URL: full, Genre: genre})
	})
	return series, nil
}
