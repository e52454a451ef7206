package inspect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/animebinge/internal/controller"
	"github.com/alvarorichard/animebinge/internal/engine"
	"github.com/alvarorichard/animebinge/internal/models"
)

type fakePage struct {
	view     controller.View
	err      error
	url      string
	settings controller.Settings
	played   int
}

func (f *fakePage) View(context.Context) (controller.View, error) { return f.view, f.err }

func (f *fakePage) Next(context.Context) (engine.Decision, error) {
	if f.err != nil {
		return engine.Decision{}, f.err
	}
	return engine.Decision{Action: engine.SeriesTransition, Index: -1, Delay: 2 * time.Second}, nil
}

func (f *fakePage) Previous(context.Context) (engine.Decision, error) {
	return engine.Decision{Action: engine.Play, Index: 0, Episode: f.view.Catalog[0]}, f.err
}

func (f *fakePage) PlayIndex(_ context.Context, i int) (engine.Decision, error) {
	f.played = i
	return engine.Decision{Action: engine.Play, Index: i, Episode: f.view.Catalog[i]}, f.err
}

func (f *fakePage) UpdateSettings(_ context.Context, s controller.Settings) (controller.View, error) {
	f.settings = s
	if s.AutoJumpEnabled != nil {
		f.view.State.AutoJumpEnabled = *s.AutoJumpEnabled
	}
	return f.view, f.err
}

func (f *fakePage) VideoURL(ctx context.Context) (string, error) {
	if f.url == "" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.url, nil
}

func newFakePage() *fakePage {
	return &fakePage{
		view: controller.View{
			URL:   "https://9animetv.to/watch/frieren-18542?ep=2",
			State: models.DefaultPlaybackState(),
			Catalog: []models.Episode{
				{ID: "1", URL: "https://9animetv.to/watch/frieren-18542?ep=1", Title: "Episode 1"},
				{ID: "2", URL: "https://9animetv.to/watch/frieren-18542?ep=2", Title: "Episode 2", Ordinal: 1},
			},
			CurrentIndex: 1,
			Mode:         "sequential",
		},
		url: "https://cdn.example/master.m3u8",
	}
}

func serve(t *testing.T, page Controller) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(func() Controller { return page }).Routes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestGetState(t *testing.T) {
	t.Parallel()

	rr := do(serve(t, newFakePage()), http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var v controller.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	assert.Equal(t, 1, v.CurrentIndex)
	assert.True(t, v.State.Autoplay)
	assert.Equal(t, "sequential", v.Mode)
}

func TestGetCatalog(t *testing.T) {
	t.Parallel()

	rr := do(serve(t, newFakePage()), http.MethodGet, "/catalog", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		CurrentIndex int              `json:"currentIndex"`
		Episodes     []models.Episode `json:"episodes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.CurrentIndex)
	assert.Len(t, body.Episodes, 2)
}

func TestVideoURL(t *testing.T) {
	t.Parallel()

	rr := do(serve(t, newFakePage()), http.MethodGet, "/video-url", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"url":"https://cdn.example/master.m3u8"}`, rr.Body.String())
}

func TestNextAndPlay(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	r := serve(t, page)

	rr := do(r, http.MethodPost, "/next", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"action":"series-transition","index":-1,"delayMs":2000}`, rr.Body.String())

	rr = do(r, http.MethodPost, "/play/0", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, page.played)

	rr = do(r, http.MethodPost, "/play/x", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPatchSettings(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	r := serve(t, page)

	rr := do(r, http.MethodPatch, "/settings", `{"autoJumpEnabled": true, "selectedGenres": ["Comedy"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, page.settings.AutoJumpEnabled)
	assert.True(t, *page.settings.AutoJumpEnabled)
	assert.Nil(t, page.settings.Autoplay)
	assert.Equal(t, []string{"Comedy"}, page.settings.SelectedGenres)

	rr = do(r, http.MethodPatch, "/settings", `{"autoplay": `)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestErrorStatuses(t *testing.T) {
	t.Parallel()

	rr := do(serve(t, nil), http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	r := chi.NewRouter()
	NewHandler(func() Controller { return nil }).Routes(r)
	rr = do(r, http.MethodPost, "/next", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	page := newFakePage()
	page.err = controller.ErrTransitionInFlight
	rr = do(serve(t, page), http.MethodPost, "/next", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	page.err = controller.ErrPageClosed
	rr = do(serve(t, page), http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterMiddleware(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(Router(NewHandler(func() Controller { return newFakePage() })))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
