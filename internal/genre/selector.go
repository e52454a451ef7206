package genre

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/retry"
	"github.com/alvarorichard/animebinge/internal/util"
)

// DefaultBaseURL is the site the listings are fetched from
const DefaultBaseURL = "https://9animetv.to"

// ErrGenresExhausted is returned when every selected genre had an empty listing
var ErrGenresExhausted = errors.New("every selected genre returned no series")

// TransientFetchError reports a listing that could not be fetched after all retries
type TransientFetchError struct {
	Genre    string
	URL      string
	Attempts int
	Err      error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s listing (%s) failed after %d attempts: %v", e.Genre, e.URL, e.Attempts, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// RNG is the randomness source used for the genre and series draws
type RNG interface {
	IntN(n int) int
}

// Selection is the outcome of a successful SelectNext
type Selection struct {
	Series models.Series
	Genre  string
	// Remaining is the active genre set after removing empty listings
	Remaining []string
	// Removed lists the genres dropped during this selection
	Removed []string
	// DefaultApplied is set when the default genre replaced an empty set
	DefaultApplied bool
}

// Selector chooses a random series from a random selected genre
type Selector struct {
	baseURL  string
	fetcher  Fetcher
	cache    *util.ResponseCache
	schedule retry.Schedule
	rng      RNG
}

// Option configures a Selector
type Option func(*Selector)

// WithFetcher replaces the HTTP fetcher
func WithFetcher(f Fetcher) Option { return func(s *Selector) { s.fetcher = f } }

// WithCache replaces the listing cache; nil disables caching
func WithCache(c *util.ResponseCache) Option { return func(s *Selector) { s.cache = c } }

// WithSchedule replaces the fetch retry schedule
func WithSchedule(sch retry.Schedule) Option { return func(s *Selector) { s.schedule = sch } }

// WithRNG replaces the randomness source
func WithRNG(r RNG) Option { return func(s *Selector) { s.rng = r } }

// NewSelector creates a selector for baseURL. Fetches are tried three times
// with a 3 second pause and listings are cached for two minutes.
func NewSelector(baseURL string, opts ...Option) *Selector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	s := &Selector{
		baseURL:  baseURL,
		fetcher:  NewHTTPFetcher(),
		cache:    util.GetListingCache(),
		schedule: retry.Fixed(3, 3*time.Second),
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectNext picks a genre uniformly from genres and a series uniformly from
// its listing. Genres with empty listings are removed and the draw repeats
// over the rest. An empty genre set uses models.DefaultGenre.
func (s *Selector) SelectNext(ctx context.Context, genres []string) (Selection, error) {
	var sel Selection

	active := models.UniqueGenres(genres)
	if len(active) == 0 {
		active = []string{models.DefaultGenre}
		sel.DefaultApplied = true
		util.Warn("No genres selected, using default", "genre", models.DefaultGenre)
	}

	for len(active) > 0 {
		i := s.rng.IntN(len(active))
		g := active[i]

		series, err := s.Listing(ctx, g)
		if err != nil {
			return Selection{}, err
		}
		if len(series) == 0 {
			util.Warn("Genre listing empty, removing genre", "genre", g)
			sel.Removed = append(sel.Removed, g)
			active = slices.Delete(slices.Clone(active), i, i+1)
			continue
		}

		sel.Series = series[s.rng.IntN(len(series))]
		sel.Genre = g
		sel.Remaining = active
		util.Info("Selected next series", "genre", g, "title", sel.Series.Title, "url", sel.Series.URL)
		return sel, nil
	}

	return Selection{}, ErrGenresExhausted
}

// Listing returns the series of a genre, from the cache when fresh
func (s *Selector) Listing(ctx context.Context, genre string) ([]models.Series, error) {
	url := ListingURL(s.baseURL, genre)

	if s.cache != nil {
		if body, ok := s.cache.Get(url); ok {
			util.Debug("Listing cache hit", "genre", genre)
			return ParseListing(body, url, genre)
		}
	}

	var body []byte
	err := retry.Do(ctx, s.schedule, func(ctx context.Context, attempt int) error {
		b, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			if errors.Is(err, errListingNotFound) {
				return retry.Permanent(err)
			}
			util.Debug("Listing fetch failed", "genre", genre, "attempt", attempt+1, "error", err)
			return err
		}
		body = b
		return nil
	})
	switch {
	case errors.Is(err, errListingNotFound):
		return nil, nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransientFetchError{Genre: genre, URL: url, Attempts: s.schedule.Attempts(), Err: err}
	}

	if s.cache != nil {
		s.cache.Set(url, body)
	}
	return ParseListing(body, url, genre)
}
