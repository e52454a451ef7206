package browser

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"

	"github.com/alvarorichard/animebinge/internal/catalog"
	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/retry"
	"github.com/alvarorichard/animebinge/internal/util"
)

// ErrNoStream is returned when neither the network nor the video element
// revealed a downloadable stream
var ErrNoStream = errors.New("could not extract a stream url")

// ErrNoEmbed is returned when an episode page has no player iframe
var ErrNoEmbed = errors.New("could not find the player iframe")

// EmbedHost is the player host embedded by episode pages
const EmbedHost = "rapid-cloud.co"

const (
	iframeSourcesScript = `() => Array.from(document.querySelectorAll('iframe')).map(f => f.src).filter(Boolean)`
	wrapperIframeScript = `() => { const f = document.querySelector('#videowrapper iframe'); return f ? f.src : ''; }`
	videoSourceScript   = `() => { const v = document.querySelector('video'); return v ? (v.src || v.currentSrc || '') : ''; }`
)

// Timings are the settle delays of the extraction flows
type Timings struct {
	SelectorTimeout time.Duration
	IframeSettle    time.Duration
	EmbedSettle     time.Duration
	WrapperSettle   time.Duration
	WrapperEmbed    time.Duration
}

// DefaultTimings gives player scripts time to request their playlists
func DefaultTimings() Timings {
	return Timings{
		SelectorTimeout: 15 * time.Second,
		IframeSettle:    2 * time.Second,
		EmbedSettle:     3 * time.Second,
		WrapperSettle:   3 * time.Second,
		WrapperEmbed:    5 * time.Second,
	}
}

// Extractor resolves watch pages to direct stream URLs using throwaway pages
// of a session
type Extractor struct {
	session *Session
	timings Timings
}

// NewExtractor creates an extractor over sess
func NewExtractor(sess *Session) *Extractor {
	return &Extractor{session: sess, timings: DefaultTimings()}
}

// StreamURL dispatches to the flow matching the site of pageURL
func (x *Extractor) StreamURL(ctx context.Context, pageURL string) (string, error) {
	if IsWrapperSite(pageURL) {
		return x.wrapperStream(ctx, pageURL)
	}
	return x.episodeStream(ctx, pageURL)
}

// IsWrapperSite reports whether pageURL is served by a site that injects
// its player into #videowrapper
func IsWrapperSite(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Hostname()), "anify.")
}

// IsStreamURL reports whether a request URL is a playlist or a whole media
// file rather than a segment
func IsStreamURL(raw string) bool {
	if strings.Contains(raw, "seg-") {
		return false
	}
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	if strings.HasSuffix(path, ".ts") {
		return false
	}
	return strings.Contains(raw, ".m3u8") || strings.Contains(raw, ".mp4")
}

// PickEmbed returns the first iframe source served by host
func PickEmbed(sources []string, host string) string {
	for _, src := range sources {
		if strings.Contains(src, host) {
			return src
		}
	}
	return ""
}

// preferDirect picks the video element source unless it is a blob that
// can't be fetched outside the page
func preferDirect(direct, intercepted string) string {
	if direct != "" && !strings.HasPrefix(direct, "blob:") {
		return direct
	}
	return intercepted
}

// streamRecorder keeps the first stream URL requested by a page
type streamRecorder struct {
	mu    sync.Mutex
	first string
}

func (r *streamRecorder) observe(req playwright.Request) {
	u := req.URL()
	if !IsStreamURL(u) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.first == "" {
		r.first = u
		util.Debug("Intercepted stream request", "url", u)
	}
}

func (r *streamRecorder) url() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.first
}

func (x *Extractor) openPage(rec *streamRecorder) (playwright.Page, error) {
	page, err := x.session.context.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open extraction page")
	}
	if rec != nil {
		page.OnRequest(rec.observe)
	}
	return page, nil
}

func (x *Extractor) load(page playwright.Page, target string) error {
	_, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(x.session.opts.NavigationTimeout.Milliseconds())),
	})
	return errors.Wrapf(err, "failed to load %s", target)
}

func (x *Extractor) waitFor(page playwright.Page, selector string) error {
	_, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(x.timings.SelectorTimeout.Milliseconds())),
	})
	return errors.Wrapf(err, "timed out waiting for %s", selector)
}

func evalString(page playwright.Page, script string) string {
	res, err := page.Evaluate(script)
	if err != nil {
		util.Debug("Evaluate failed", "error", err)
		return ""
	}
	s, _ := res.(string)
	return s
}

// episodeStream opens the episode page, hops into the embedded player and
// reads the stream from its requests or its video element
func (x *Extractor) episodeStream(ctx context.Context, pageURL string) (string, error) {
	page, err := x.openPage(nil)
	if err != nil {
		return "", err
	}
	embed, err := func() (string, error) {
		defer page.Close()
		if err := x.load(page, pageURL); err != nil {
			return "", err
		}
		if err := x.waitFor(page, "iframe"); err != nil {
			return "", err
		}
		if err := retry.Sleep(ctx, x.timings.IframeSettle); err != nil {
			return "", err
		}
		res, err := page.Evaluate(iframeSourcesScript)
		if err != nil {
			return "", errors.Wrap(err, "failed to list iframes")
		}
		var sources []string
		if list, ok := res.([]interface{}); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					sources = append(sources, s)
				}
			}
		}
		if src := PickEmbed(sources, EmbedHost); src != "" {
			return src, nil
		}
		return "", ErrNoEmbed
	}()
	if err != nil {
		return "", errors.Wrap(err, "failed to extract video url")
	}
	util.Debug("Found player embed", "url", embed)

	rec := &streamRecorder{}
	embedPage, err := x.openPage(rec)
	if err != nil {
		return "", err
	}
	defer embedPage.Close()

	if err := x.load(embedPage, embed); err != nil {
		return "", errors.Wrap(err, "failed to extract video url")
	}
	if err := x.waitFor(embedPage, "video"); err != nil {
		return "", errors.Wrap(err, "failed to extract video url")
	}
	if err := retry.Sleep(ctx, x.timings.EmbedSettle); err != nil {
		return "", err
	}

	if u := preferDirect(evalString(embedPage, videoSourceScript), rec.url()); u != "" {
		return u, nil
	}
	return "", ErrNoStream
}

// wrapperStream handles sites that inject the player iframe into
// #videowrapper after load
func (x *Extractor) wrapperStream(ctx context.Context, pageURL string) (string, error) {
	rec := &streamRecorder{}
	page, err := x.openPage(rec)
	if err != nil {
		return "", err
	}
	iframeSrc, err := func() (string, error) {
		defer page.Close()
		if err := x.load(page, pageURL); err != nil {
			return "", err
		}
		if err := retry.Sleep(ctx, x.timings.WrapperSettle); err != nil {
			return "", err
		}
		if err := x.waitFor(page, "#videowrapper iframe"); err != nil {
			return "", err
		}
		return evalString(page, wrapperIframeScript), nil
	}()
	if err != nil {
		return "", errors.Wrap(err, "failed to extract video url")
	}
	if u := rec.url(); u != "" {
		return u, nil
	}
	if iframeSrc == "" {
		return "", ErrNoEmbed
	}

	embedRec := &streamRecorder{}
	embedPage, err := x.openPage(embedRec)
	if err != nil {
		return "", err
	}
	defer embedPage.Close()

	if err := x.load(embedPage, iframeSrc); err != nil {
		return "", errors.Wrap(err, "failed to extract video url")
	}
	if err := retry.Sleep(ctx, x.timings.WrapperEmbed); err != nil {
		return "", err
	}
	if u := embedRec.url(); u != "" {
		return u, nil
	}
	if u := preferDirect(evalString(embedPage, videoSourceScript), ""); u != "" {
		return u, nil
	}
	return "", ErrNoStream
}

// Episodes loads a series page and extracts its episode catalog
func (x *Extractor) Episodes(ctx context.Context, seriesURL string) ([]models.Episode, error) {
	page, err := x.openPage(nil)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := x.load(page, seriesURL); err != nil {
		return nil, err
	}
	if err := x.waitFor(page, ".block_area-episodes"); err != nil {
		util.Debug("Episode block not rendered yet", "url", seriesURL, "error", err)
	}
	return catalog.NewExtractor().Extract(ctx, pageSource{page: page})
}

// pageSource adapts a throwaway page to catalog.Source
type pageSource struct {
	page playwright.Page
}

func (s pageSource) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := s.page.Content()
	return html, errors.Wrap(err, "failed to read page content")
}

func (s pageSource) URL() string { return s.page.URL() }
