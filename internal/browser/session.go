// Package browser drives a Chromium instance through playwright for
// watching and for stream extraction.
package browser

import (
	"context"
	_ "embed"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"

	"github.com/alvarorichard/animebinge/internal/bridge"
	"github.com/alvarorichard/animebinge/internal/util"
)

// videoEventBinding is the page-side name of the native video event relay
const videoEventBinding = "__animebingeVideoEvent"

//go:embed scripts/video_events.js
var videoEventsScript string

// ErrSessionClosed is returned once the browser session has been closed
var ErrSessionClosed = errors.New("browser session closed")

// Options controls how Chromium is launched
type Options struct {
	Headless   bool
	Fullscreen bool
	UserAgent  string
	// NavigationTimeout bounds a single page load
	NavigationTimeout time.Duration
}

// DefaultOptions returns the options used for a visible watch session
func DefaultOptions() Options {
	return Options{
		UserAgent:         util.UserAgent,
		NavigationTimeout: 60 * time.Second,
	}
}

// VideoEventFunc receives native video events from any frame of the page
type VideoEventFunc func(frame playwright.Frame, ev bridge.Event)

// Session owns one browser, one context and its main page
type Session struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	mu          sync.Mutex
	onVideo     VideoEventFunc
	onNavigated func(url string)
	closed      chan struct{}
	closeOnce   sync.Once
}

// Install downloads the playwright driver and Chromium when missing
func Install() error {
	err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
	return errors.Wrap(err, "failed to install playwright chromium")
}

// Launch starts Chromium, wires the video event relay into every frame and
// opens the main page
func Launch(opts Options) (*Session, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultOptions().NavigationTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = util.UserAgent
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.Wrap(err, "failed to start playwright")
	}

	args := []string{"--autoplay-policy=no-user-gesture-required"}
	if opts.Fullscreen && !opts.Headless {
		args = append(args, "--start-fullscreen")
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errors.Wrap(err, "failed to launch chromium")
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(opts.UserAgent),
	}
	if !opts.Headless {
		ctxOpts.NoViewport = playwright.Bool(true)
	}
	bctx, err := b.NewContext(ctxOpts)
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, errors.Wrap(err, "failed to create browser context")
	}

	s := &Session{
		opts:    opts,
		pw:      pw,
		browser: b,
		context: bctx,
		closed:  make(chan struct{}),
	}

	if err := bctx.ExposeBinding(videoEventBinding, s.handleVideoEvent); err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "failed to expose video event binding")
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(videoEventsScript)}); err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "failed to add init script")
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "failed to open page")
	}
	page.SetDefaultNavigationTimeout(float64(opts.NavigationTimeout.Milliseconds()))
	page.OnFrameNavigated(s.handleFrameNavigated)
	page.OnClose(func(playwright.Page) { s.markClosed() })
	s.page = page

	util.Debug("Browser launched", "headless", opts.Headless, "fullscreen", opts.Fullscreen)
	return s, nil
}

// OnVideoEvent registers the receiver of relayed video events
func (s *Session) OnVideoEvent(fn VideoEventFunc) {
	s.mu.Lock()
	s.onVideo = fn
	s.mu.Unlock()
}

// OnMainFrameNavigated registers a callback fired after every top-level navigation
func (s *Session) OnMainFrameNavigated(fn func(url string)) {
	s.mu.Lock()
	s.onNavigated = fn
	s.mu.Unlock()
}

// Navigate loads url in the main page. The call returns early when ctx is
// done; the load itself keeps going in the browser.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	errCh := make(chan error, 1)
	go func() {
		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		})
		errCh <- err
	}()
	select {
	case err := <-errCh:
		return errors.Wrapf(err, "failed to navigate to %s", url)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Content returns the rendered HTML of the main page
func (s *Session) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := s.page.Content()
	return html, errors.Wrap(err, "failed to read page content")
}

// URL returns the main page URL
func (s *Session) URL() string { return s.page.URL() }

// Page exposes the main page for video lookup
func (s *Session) Page() playwright.Page { return s.page }

// Closed is closed once the user closes the window or Close is called
func (s *Session) Closed() <-chan struct{} { return s.closed }

// Close shuts the browser and the playwright driver down
func (s *Session) Close() error {
	s.markClosed()
	var errs []string
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("failed to close browser: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Session) handleVideoEvent(source *playwright.BindingSource, args ...interface{}) interface{} {
	if len(args) == 0 {
		return nil
	}
	name, _ := args[0].(string)
	var ev bridge.Event
	switch bridge.Event(name) {
	case bridge.EventEnded, bridge.EventPause:
		ev = bridge.Event(name)
	default:
		return nil
	}

	s.mu.Lock()
	fn := s.onVideo
	s.mu.Unlock()
	if fn != nil && source != nil {
		fn(source.Frame, ev)
	}
	return nil
}

func (s *Session) handleFrameNavigated(frame playwright.Frame) {
	if frame.ParentFrame() != nil {
		return
	}
	s.mu.Lock()
	fn := s.onNavigated
	s.mu.Unlock()
	if fn != nil {
		fn(frame.URL())
	}
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Title returns the main page document title
func (s *Session) Title() string {
	t, err := s.page.Title()
	if err != nil {
		util.Debug("Failed to read page title", "error", err)
		return ""
	}
	return t
}
