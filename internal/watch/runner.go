// Package watch keeps one page controller alive per watch page loaded in the
// browser and wires the video frame to it.
package watch

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alvarorichard/animebinge/internal/bridge"
	"github.com/alvarorichard/animebinge/internal/catalog"
	"github.com/alvarorichard/animebinge/internal/controller"
	"github.com/alvarorichard/animebinge/internal/discord"
	"github.com/alvarorichard/animebinge/internal/engine"
	"github.com/alvarorichard/animebinge/internal/session"
	"github.com/alvarorichard/animebinge/internal/util"
)

// Video is a located video element
type Video interface {
	bridge.Video
	// Origin is the origin of the frame hosting the video
	Origin() string
	// Key identifies the hosting frame in video events
	Key() any
}

// Browser is the browser surface the runner drives
type Browser interface {
	controller.Navigator
	catalog.Source
	Title() string
	Closed() <-chan struct{}
	LocateVideo(ctx context.Context) (Video, bool, error)
	OnMainFrameNavigated(fn func(url string))
	OnVideoEvent(fn func(frame any, ev bridge.Event))
}

// Options configures a runner
type Options struct {
	StartURL         string
	Page             controller.Config
	Child            bridge.ChildConfig
	PresenceInterval time.Duration
}

// Runner owns the page controllers of one browser session
type Runner struct {
	browser   Browser
	store     session.Store
	selector  controller.Selector
	extractor *catalog.Extractor
	presence  *discord.Presence
	rng       engine.RNG
	opts      Options

	wg sync.WaitGroup

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	page   *controller.Page
	child  *bridge.Child
	video  Video
}

// Option customizes a Runner
type Option func(*Runner)

// WithExtractor replaces the catalog extractor
func WithExtractor(x *catalog.Extractor) Option { return func(r *Runner) { r.extractor = x } }

// WithPresence mirrors playback to Discord
func WithPresence(p *discord.Presence) Option { return func(r *Runner) { r.presence = p } }

// WithRNG fixes the auto-jump draws
func WithRNG(rng engine.RNG) Option { return func(r *Runner) { r.rng = rng } }

// New creates a runner
func New(b Browser, store session.Store, selector controller.Selector, opts Options, ropts ...Option) *Runner {
	if opts.PresenceInterval <= 0 {
		opts.PresenceInterval = 15 * time.Second
	}
	r := &Runner{
		browser:   b,
		store:     store,
		selector:  selector,
		extractor: catalog.NewExtractor(),
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x2545f4914f6cdd1d)),
		opts:      opts,
	}
	for _, opt := range ropts {
		opt(r)
	}
	return r
}

// IsWatchURL reports whether u is a series or episode watch page
func IsWatchURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return strings.Contains(parsed.Path, "/watch/")
}

// Run opens the start page and serves page loads until ctx is done or the
// browser window is closed
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.browser.OnVideoEvent(r.videoEvent)
	r.browser.OnMainFrameNavigated(func(u string) { r.loaded(ctx, u) })

	if r.presence != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.presence.Run(ctx, r.opts.PresenceInterval, r.playback)
		}()
	}

	if r.opts.StartURL != "" {
		if err := r.browser.Navigate(ctx, r.opts.StartURL); err != nil {
			cancel()
			r.stop()
			return err
		}
	}

	select {
	case <-ctx.Done():
	case <-r.browser.Closed():
		util.Info("Browser closed")
	}
	cancel()
	r.stop()
	return nil
}

// Current returns the controller of the page on screen, or nil
func (r *Runner) Current() *controller.Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page
}

// loaded tears down the previous page load and starts a controller when u
// is a watch page
func (r *Runner) loaded(ctx context.Context, u string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	r.seq++
	r.teardownLocked()
	if !IsWatchURL(u) {
		util.Debug("Not a watch page, idling", "url", u)
		return
	}

	pctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	seq := r.seq
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runPage(pctx, seq, u)
	}()
}

func (r *Runner) runPage(ctx context.Context, seq uint64, pageURL string) {
	episodes, err := r.extractor.Extract(ctx, r.browser)
	if ctx.Err() != nil {
		return
	}
	if err != nil && !errors.Is(err, catalog.ErrEmptyCatalog) {
		util.Warn("Episode extraction failed", "url", pageURL, "error", err)
	}

	page := controller.NewPage(ctx, r.opts.Page, controller.Deps{
		Store:     r.store,
		Navigator: r.browser,
		Selector:  r.selector,
		RNG:       r.rng,
	}, pageURL, episodes, catalog.CurrentEpisodeID(pageURL))

	childCfg := r.opts.Child
	childCfg.Autoplay = r.store.Load(ctx).Autoplay
	child := bridge.NewChild(childCfg, r.locator(seq), r.poster(seq, page, pageURL))
	page.AttachChild(child)

	r.mu.Lock()
	if r.seq != seq {
		r.mu.Unlock()
		return
	}
	r.page = page
	r.child = child
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := child.Run(ctx); err != nil && ctx.Err() == nil {
			util.Warn("Video frame gave up", "url", pageURL, "error", err)
		}
	}()

	if err := page.Run(ctx); err != nil {
		util.Debug("Page controller stopped", "error", err)
	}
}

// locator finds the video and remembers its frame for event routing
func (r *Runner) locator(seq uint64) bridge.LocateFunc {
	return func(ctx context.Context) (bridge.Video, bool, error) {
		v, ok, err := r.browser.LocateVideo(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		r.mu.Lock()
		if r.seq == seq {
			r.video = v
		}
		r.mu.Unlock()
		util.Debug("Video located", "origin", v.Origin())
		return v, true, nil
	}
}

// poster wraps child messages in an envelope stamped with the video frame origin
func (r *Runner) poster(seq uint64, page *controller.Page, pageURL string) bridge.PostFunc {
	fallback := bridge.OriginOf(pageURL)
	return func(_ context.Context, m bridge.Message) error {
		data, err := bridge.Encode(m)
		if err != nil {
			return err
		}
		origin := fallback
		r.mu.Lock()
		if r.seq == seq && r.video != nil {
			origin = r.video.Origin()
		}
		r.mu.Unlock()
		page.Post(bridge.Envelope{Origin: origin, Data: data})
		return nil
	}
}

// videoEvent forwards native events of the located video's frame to the child
func (r *Runner) videoEvent(frame any, ev bridge.Event) {
	r.mu.Lock()
	child, video := r.child, r.video
	r.mu.Unlock()
	if child == nil || video == nil {
		return
	}
	if video.Key() != frame {
		util.Debug("Ignoring video event from another frame", "event", ev)
		return
	}
	child.Notify(ev)
}

// playback feeds the Discord presence
func (r *Runner) playback(ctx context.Context) (discord.Playback, bool) {
	page := r.Current()
	if page == nil {
		return discord.Playback{}, false
	}
	v, err := page.View(ctx)
	if err != nil {
		return discord.Playback{}, false
	}
	pb := discord.Playback{
		Series:    r.browser.Title(),
		SeriesURL: stripQuery(v.URL),
		Ordinal:   max(v.CurrentIndex, 0),
		Total:     len(v.Catalog),
		AutoJump:  v.State.AutoJumpEnabled,
		Status:    v.LastStatus,
	}
	if v.CurrentIndex >= 0 && v.CurrentIndex < len(v.Catalog) {
		pb.Episode = v.Catalog[v.CurrentIndex].Title
	}
	return pb, true
}

func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

func (r *Runner) teardownLocked() {
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = nil
	r.page = nil
	r.child = nil
	r.video = nil
}

func (r *Runner) stop() {
	r.mu.Lock()
	r.seq++
	r.teardownLocked()
	r.mu.Unlock()
	r.wg.Wait()
}
