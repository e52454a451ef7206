package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/animebinge/internal/bridge"
	"github.com/alvarorichard/animebinge/internal/engine"
	"github.com/alvarorichard/animebinge/internal/genre"
	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/session"
)

type zeroRNG struct{}

func (zeroRNG) IntN(int) int { return 0 }

type navRecorder struct {
	mu    sync.Mutex
	urls  []string
	err   error
	block bool
	// saved captures the stored state at the moment of navigation
	store session.Store
	saved []models.PlaybackState
}

func (n *navRecorder) Navigate(ctx context.Context, url string) error {
	n.mu.Lock()
	n.urls = append(n.urls, url)
	if n.store != nil {
		n.saved = append(n.saved, n.store.Load(ctx))
	}
	err, block := n.err, n.block
	n.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (n *navRecorder) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}

type stubSelector struct {
	mu     sync.Mutex
	calls  int
	genres [][]string
	sel    genre.Selection
	err    error
}

func (s *stubSelector) SelectNext(_ context.Context, genres []string) (genre.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.genres = append(s.genres, genres)
	return s.sel, s.err
}

func (s *stubSelector) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func episodes(n int) []models.Episode {
	eps := make([]models.Episode, n)
	for i := range eps {
		id := fmt.Sprintf("%d", 100+i)
		eps[i] = models.Episode{ID: id, URL: "https://9animetv.to/watch/show-1?ep=" + id, Title: "Episode " + id, Ordinal: i}
	}
	return eps
}

type harness struct {
	page     *Page
	store    session.Store
	nav      *navRecorder
	selector *stubSelector
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, state *models.PlaybackState, eps []models.Episode, currentID string, tweak func(*Config, *navRecorder, *stubSelector)) *harness {
	t.Helper()

	store := session.NewFileStore(afero.NewMemMapFs(), "/state.json")
	if state != nil {
		require.NoError(t, store.Save(context.Background(), *state))
	}
	h := &harness{
		store:    store,
		nav:      &navRecorder{store: store},
		selector: &stubSelector{},
	}
	cfg := Config{EndDelay: 10 * time.Millisecond, InflightTimeout: time.Second}
	if tweak != nil {
		tweak(&cfg, h.nav, h.selector)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.page = NewPage(ctx, cfg, Deps{Store: store, Navigator: h.nav, Selector: h.selector, RNG: zeroRNG{}},
		"https://9animetv.to/watch/show-1?ep="+currentID, eps, currentID)
	go func() { _ = h.page.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.page.Done()
	})
	return h
}

func ended(t *testing.T) bridge.Envelope {
	t.Helper()
	data, err := bridge.Encode(bridge.Ended{})
	require.NoError(t, err)
	return bridge.Envelope{Origin: "https://rapid-cloud.co", Data: data}
}

func TestDoubleEndedAdvancesOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, episodes(3), "100", nil)
	h.page.Post(ended(t))
	h.page.Post(ended(t))

	require.Eventually(t, func() bool { return len(h.nav.visited()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"https://9animetv.to/watch/show-1?ep=101"}, h.nav.visited())
}

func TestEndedWithAutoplayOff(t *testing.T) {
	t.Parallel()

	st := models.DefaultPlaybackState()
	st.Autoplay = false
	h := newHarness(t, &st, episodes(3), "100", nil)
	h.page.Post(ended(t))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, h.nav.visited())

	view, err := h.page.View(context.Background())
	require.NoError(t, err)
	assert.True(t, view.EndedSeen)
}

func TestStateSavedBeforeNavigation(t *testing.T) {
	t.Parallel()

	st := models.DefaultPlaybackState()
	st.AutoJumpEnabled = true
	st.SelectedGenres = []string{"Drama"}
	st.PendingEpisodeQueue = []int{4, 2, 7}
	st.TargetEpisodesInSeries = 3

	h := newHarness(t, &st, episodes(10), "100", nil)
	d, err := h.page.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.Play, d.Action)
	assert.Equal(t, 4, d.Index)

	require.Eventually(t, func() bool { return len(h.nav.visited()) == 1 }, time.Second, time.Millisecond)
	h.nav.mu.Lock()
	saved := h.nav.saved[0]
	h.nav.mu.Unlock()
	assert.Equal(t, []int{2, 7}, saved.PendingEpisodeQueue)
	assert.Equal(t, 1, saved.EpisodesWatchedInSeries)
}

func TestNextWhileInFlight(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, episodes(3), "100", func(_ *Config, nav *navRecorder, _ *stubSelector) {
		nav.block = true
	})
	_, err := h.page.Next(context.Background())
	require.NoError(t, err)

	_, err = h.page.Next(context.Background())
	assert.ErrorIs(t, err, ErrTransitionInFlight)
	_, err = h.page.Previous(context.Background())
	assert.ErrorIs(t, err, ErrTransitionInFlight)
}

func TestInflightTimeoutReenablesAdvance(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, episodes(3), "100", func(cfg *Config, nav *navRecorder, _ *stubSelector) {
		nav.block = true
		cfg.InflightTimeout = 30 * time.Millisecond
	})
	_, err := h.page.Next(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := h.page.View(context.Background())
		return err == nil && !v.Inflight
	}, time.Second, 5*time.Millisecond)

	_, err = h.page.Next(context.Background())
	assert.NoError(t, err)
}

func TestNavigationFailureClearsInflight(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, episodes(3), "100", func(_ *Config, nav *navRecorder, _ *stubSelector) {
		nav.err = errors.New("net::ERR_ABORTED")
	})
	_, err := h.page.Next(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := h.page.View(context.Background())
		return err == nil && !v.Inflight
	}, time.Second, 5*time.Millisecond)
}

func TestEmptyCatalogJumpsToNewSeries(t *testing.T) {
	t.Parallel()

	st := models.DefaultPlaybackState()
	st.SelectedGenres = []string{"Action", "Comedy"}
	h := newHarness(t, &st, nil, "", func(_ *Config, _ *navRecorder, sel *stubSelector) {
		sel.sel = genre.Selection{
			Series:    models.Series{Title: "Gintama", URL: "https://9animetv.to/watch/gintama-2"},
			Genre:     "Comedy",
			Remaining: []string{"Comedy"},
			Removed:   []string{"Action"},
		}
	})

	require.Eventually(t, func() bool { return len(h.nav.visited()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "https://9animetv.to/watch/gintama-2", h.nav.visited()[0])
	assert.Equal(t, 1, h.selector.count())
	assert.Equal(t, []string{"Comedy"}, h.store.Load(context.Background()).SelectedGenres)
}

func TestAutoJumpExhaustionSelectsOnce(t *testing.T) {
	t.Parallel()

	st := models.DefaultPlaybackState()
	st.AutoJumpEnabled = true
	st.SelectedGenres = []string{"Drama"}
	st.PendingEpisodeQueue = []int{3}
	st.TargetEpisodesInSeries = 2
	st.EpisodesWatchedInSeries = 1

	h := newHarness(t, &st, episodes(5), "102", func(cfg *Config, _ *navRecorder, sel *stubSelector) {
		sel.err = genre.ErrGenresExhausted
	})

	d, err := h.page.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.SeriesTransition, d.Action)
	assert.Equal(t, engine.TransitionDelay, d.Delay)

	_, err = h.page.Next(context.Background())
	assert.ErrorIs(t, err, ErrTransitionInFlight)

	require.Eventually(t, func() bool { return h.selector.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		v, err := h.page.View(context.Background())
		return err == nil && !v.Inflight
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, h.nav.visited())
	assert.Equal(t, []string{"Drama"}, h.store.Load(context.Background()).SelectedGenres)
}

func TestUpdateSettings(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, episodes(10), "100", nil)

	on, off := true, false
	view, err := h.page.UpdateSettings(context.Background(), Settings{
		Autoplay:        &off,
		AutoJumpEnabled: &on,
		SelectedGenres:  []string{"romance", "Cooking"},
	})
	require.NoError(t, err)
	assert.False(t, view.State.Autoplay)
	assert.True(t, view.State.AutoJumpEnabled)
	assert.Equal(t, []string{"Romance"}, view.State.SelectedGenres)
	assert.Len(t, view.State.PendingEpisodeQueue, 3)
	assert.Equal(t, "auto-jump", view.Mode)

	stored := h.store.Load(context.Background())
	assert.Equal(t, view.State, stored)

	view, err = h.page.UpdateSettings(context.Background(), Settings{AutoJumpEnabled: &off})
	require.NoError(t, err)
	assert.Empty(t, view.State.PendingEpisodeQueue)
	assert.Zero(t, view.State.TargetEpisodesInSeries)
}

type echoChild struct {
	page *Page
	url  string
}

func (c *echoChild) Deliver(m bridge.Message) {
	if _, ok := m.(bridge.GetURL); !ok {
		return
	}
	go func() {
		data, _ := bridge.Encode(bridge.URL{URL: c.url})
		c.page.Post(bridge.Envelope{Origin: "https://rapid-cloud.co", Data: data})
	}()
}

func TestVideoURLRoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, episodes(2), "100", nil)

	got, err := h.page.VideoURL(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got, "no child attached yet")

	h.page.AttachChild(&echoChild{page: h.page, url: "https://cdn.example/master.m3u8"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err = h.page.VideoURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/master.m3u8", got)
}

func TestCallsAfterShutdown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, episodes(2), "100", nil)
	h.cancel()
	<-h.page.Done()

	_, err := h.page.View(context.Background())
	assert.ErrorIs(t, err, ErrPageClosed)
	assert.ErrorIs(t, h.page.Run(context.Background()), ErrPageClosed)
}
