package genre

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/retry"
	"github.com/alvarorichard/animebinge/internal/util"
)

type firstRNG struct{}

func (firstRNG) IntN(int) int { return 0 }

const comedyListing = `<html><body>
<div class="film_list">
  <a href="/watch/spy-x-family-17977" title="Spy x Family">Spy x Family</a>
  <a href="/watch/spy-x-family-17977?ep=94407">Episode 1</a>
  <a href="https://9animetv.to/watch/gintama-2">  Gintama </a>
  <a href="/watch/spy-x-family-17977">duplicate</a>
  <a href="/genre/comedy">Comedy</a>
</div>
</body></html>`

const emptyListing = `<html><body><p>No results</p></body></html>`

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Action":         "action",
		"Slice of Life":  "slice-of-life",
		"Sci-Fi":         "sci-fi",
		" Martial  Arts": "martial-arts",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
}

func TestCanonicalAndNormalize(t *testing.T) {
	t.Parallel()

	g, ok := Canonical("slice-of-life")
	require.True(t, ok)
	assert.Equal(t, "Slice of Life", g)

	_, ok = Canonical("Cooking")
	assert.False(t, ok)

	known, unknown := Normalize([]string{"action", "Action", "Cooking", "", "super power"})
	assert.Equal(t, []string{"Action", "Super Power"}, known)
	assert.Equal(t, []string{"Cooking"}, unknown)
	assert.Len(t, Available, 41)
}

func TestParseListing(t *testing.T) {
	t.Parallel()

	series, err := ParseListing([]byte(comedyListing), "https://9animetv.to/genre/comedy", "Comedy")
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, models.Series{
		Title: "Spy x Family",
		URL:   "https://9animetv.to/watch/spy-x-family-17977",
		Genre: "Comedy",
	}, series[0])
	assert.Equal(t, "Gintama", series[1].Title)
}

func TestListingURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://9animetv.to/genre/martial-arts", ListingURL("https://9animetv.to/", "Martial Arts"))
}

func newListingServer(t *testing.T, pages map[string]string) (*httptest.Server, *sync.Map) {
	t.Helper()
	hits := &sync.Map{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := hits.LoadOrStore(r.URL.Path, new(int))
		*(n.(*int))++
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func hitCount(hits *sync.Map, path string) int {
	n, ok := hits.Load(path)
	if !ok {
		return 0
	}
	return *(n.(*int))
}

func TestSelectNextRemovesEmptyGenre(t *testing.T) {
	t.Parallel()

	srv, _ := newListingServer(t, map[string]string{
		"/genre/action": emptyListing,
		"/genre/comedy": comedyListing,
	})
	s := NewSelector(srv.URL, WithCache(nil), WithRNG(firstRNG{}))

	sel, err := s.SelectNext(context.Background(), []string{"Action", "Comedy"})
	require.NoError(t, err)
	assert.Equal(t, "Comedy", sel.Genre)
	assert.Equal(t, []string{"Comedy"}, sel.Remaining)
	assert.Equal(t, []string{"Action"}, sel.Removed)
	assert.Equal(t, srv.URL+"/watch/spy-x-family-17977", sel.Series.URL)
	assert.False(t, sel.DefaultApplied)
}

func TestSelectNextExhausted(t *testing.T) {
	t.Parallel()

	srv, _ := newListingServer(t, map[string]string{
		"/genre/action": emptyListing,
	})
	s := NewSelector(srv.URL, WithCache(nil), WithRNG(firstRNG{}))

	// drama is a 404, which counts as an empty listing
	_, err := s.SelectNext(context.Background(), []string{"Action", "Drama"})
	assert.ErrorIs(t, err, ErrGenresExhausted)
}

func TestSelectNextDefaultGenre(t *testing.T) {
	t.Parallel()

	srv, hits := newListingServer(t, map[string]string{
		"/genre/action": comedyListing,
	})
	s := NewSelector(srv.URL, WithCache(nil), WithRNG(firstRNG{}))

	sel, err := s.SelectNext(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, sel.DefaultApplied)
	assert.Equal(t, "Action", sel.Genre)
	assert.Equal(t, []string{"Action"}, sel.Remaining)
	assert.Equal(t, 1, hitCount(hits, "/genre/action"))
}

func TestSelectNextUsesCache(t *testing.T) {
	t.Parallel()

	srv, hits := newListingServer(t, map[string]string{
		"/genre/comedy": comedyListing,
	})
	s := NewSelector(srv.URL, WithCache(util.NewResponseCache(time.Minute, 8)), WithRNG(firstRNG{}))

	for i := 0; i < 3; i++ {
		_, err := s.SelectNext(context.Background(), []string{"Comedy"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, hitCount(hits, "/genre/comedy"))
}

type flakyFetcher struct {
	mu    sync.Mutex
	calls int
	fail  int
	body  []byte
}

func (f *flakyFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return nil, errors.New("connection reset")
	}
	return f.body, nil
}

func TestListingRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	f := &flakyFetcher{fail: 2, body: []byte(comedyListing)}
	s := NewSelector("https://9animetv.to", WithFetcher(f), WithCache(nil),
		WithRNG(firstRNG{}), WithSchedule(retry.Fixed(3, time.Millisecond)))

	sel, err := s.SelectNext(context.Background(), []string{"Comedy"})
	require.NoError(t, err)
	assert.Equal(t, "Spy x Family", sel.Series.Title)
	assert.Equal(t, 3, f.calls)
}

func TestListingTransientFetchError(t *testing.T) {
	t.Parallel()

	f := &flakyFetcher{fail: 10}
	s := NewSelector("https://9animetv.to", WithFetcher(f), WithCache(nil),
		WithRNG(firstRNG{}), WithSchedule(retry.Fixed(3, time.Millisecond)))

	_, err := s.SelectNext(context.Background(), []string{"Comedy", "Drama"})
	var tfe *TransientFetchError
	require.ErrorAs(t, err, &tfe)
	assert.Equal(t, "Comedy", tfe.Genre)
	assert.Equal(t, 3, tfe.Attempts)
	assert.Equal(t, 3, f.calls, "bounded retry, other genres untouched")
}

func TestHTTPFetcherStatuses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("hello"))
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorIs(t, err, errListingNotFound)

	_, err = f.Fetch(context.Background(), srv.URL+"/broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errListingNotFound)
}
